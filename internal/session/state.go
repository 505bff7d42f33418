package session

// Status is the tag of a RequestState.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// RequestState is the observable state of one async request kind.
// Value is set only in StatusSuccess, Reason only in StatusFailed.
type RequestState[T any] struct {
	Status Status `json:"status"`
	Value  T      `json:"value,omitempty"`
	Reason string `json:"error,omitempty"`
}

// Machine is an idle/pending/success/failed state machine guarded by a
// generation counter. Every Start and Reset bumps the generation; a
// completion carrying an older generation is stale and ignored.
// Machine is not safe for concurrent use; Session serializes access.
type Machine[T any] struct {
	state      RequestState[T]
	generation uint64
}

// State returns the current state.
func (m *Machine[T]) State() RequestState[T] { return m.state }

// Generation returns the current generation.
func (m *Machine[T]) Generation() uint64 { return m.generation }

// Pending reports whether a request is in flight.
func (m *Machine[T]) Pending() bool { return m.state.Status == StatusPending }

// Start moves to pending and returns the generation the completion must carry.
func (m *Machine[T]) Start() uint64 {
	m.generation++
	m.state = RequestState[T]{Status: StatusPending}
	return m.generation
}

// Resolve applies a successful completion. It returns false if gen is stale.
func (m *Machine[T]) Resolve(gen uint64, value T) bool {
	if gen != m.generation {
		return false
	}
	m.state = RequestState[T]{Status: StatusSuccess, Value: value}
	return true
}

// Reject applies a failed completion. It returns false if gen is stale.
func (m *Machine[T]) Reject(gen uint64, reason string) bool {
	if gen != m.generation {
		return false
	}
	m.state = RequestState[T]{Status: StatusFailed, Reason: reason}
	return true
}

// Reset returns to idle and invalidates any in-flight request.
func (m *Machine[T]) Reset() {
	m.generation++
	m.state = RequestState[T]{Status: StatusIdle}
}

// Dismiss returns to idle, discarding value and reason. An in-flight request
// keeps its generation and may still complete into the machine.
func (m *Machine[T]) Dismiss() {
	m.state = RequestState[T]{Status: StatusIdle}
}
