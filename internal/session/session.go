package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/snappy-loop/donghua/internal/agents"
	"github.com/snappy-loop/donghua/internal/llm"
)

const (
	promptFailedMessage = "An error occurred while generating the prompt."
	imageFailedMessage  = "Failed to generate image preview."
)

// Snapshot is a consistent copy of a session's state for rendering.
type Snapshot struct {
	ID                uuid.UUID            `json:"session_id"`
	Description       string               `json:"description,omitempty"`
	Prompt            RequestState[string] `json:"prompt"`
	Image             RequestState[string] `json:"image"`
	CanGeneratePrompt bool                 `json:"can_generate_prompt"`
	CanGenerateImage  bool                 `json:"can_generate_image"`
	UpdatedAt         time.Time            `json:"updated_at"`
}

// Session owns the prompt and image state machines of one studio user and
// runs their client calls. The image machine is only triggered from a usable
// prompt success, and a new description resets it.
type Session struct {
	id      uuid.UUID
	agent   agents.CharacterAgent
	baseCtx context.Context
	timeout time.Duration

	mu          sync.Mutex
	description string
	prompt      Machine[string]
	image       Machine[string]
	updatedAt   time.Time
	subscribers map[int]chan Snapshot
	nextSubID   int

	inflight sync.WaitGroup
	// tracker, when set, also counts this session's calls so an owner can
	// drain them after the session itself is gone.
	tracker *sync.WaitGroup
}

// New creates a session with both machines idle. Client calls run under
// baseCtx with the given per-call timeout (0 means no timeout).
func New(baseCtx context.Context, agent agents.CharacterAgent, timeout time.Duration) *Session {
	return &Session{
		id:          uuid.New(),
		agent:       agent,
		baseCtx:     baseCtx,
		timeout:     timeout,
		updatedAt:   time.Now(),
		subscribers: make(map[int]chan Snapshot),
	}
}

func newTracked(baseCtx context.Context, agent agents.CharacterAgent, timeout time.Duration, tracker *sync.WaitGroup) *Session {
	s := New(baseCtx, agent, timeout)
	s.tracker = tracker
	return s
}

// ID returns the session id.
func (s *Session) ID() uuid.UUID { return s.id }

// SubmitDescription starts prompt generation for a non-blank description and
// resets the image machine. It is a no-op (returns false) for blank input or
// while a prompt request is pending.
func (s *Session) SubmitDescription(description string) bool {
	if strings.TrimSpace(description) == "" {
		return false
	}

	s.mu.Lock()
	if s.prompt.Pending() {
		s.mu.Unlock()
		return false
	}
	s.description = description
	gen := s.prompt.Start()
	s.image.Reset()
	s.changedLocked()
	s.mu.Unlock()

	log.Info().
		Str("session_id", s.id.String()).
		Uint64("generation", gen).
		Int("description_length", len(description)).
		Msg("Prompt generation started")

	s.run(func(ctx context.Context) {
		prompt, err := s.agent.GeneratePrompt(ctx, description)
		s.completePrompt(gen, prompt, err)
	}, func(reason string) {
		s.completePrompt(gen, "", fmt.Errorf("%s", reason))
	})
	return true
}

// RequestImage starts a preview for the current prompt. It is a no-op
// (returns false) unless the prompt machine holds a usable success and no
// image request is pending.
func (s *Session) RequestImage() bool {
	s.mu.Lock()
	if !s.canGenerateImageLocked() {
		s.mu.Unlock()
		return false
	}
	prompt := s.prompt.State().Value
	gen := s.image.Start()
	s.changedLocked()
	s.mu.Unlock()

	log.Info().
		Str("session_id", s.id.String()).
		Uint64("generation", gen).
		Int("prompt_length", len(prompt)).
		Msg("Image preview started")

	s.run(func(ctx context.Context) {
		payload, err := s.agent.GenerateImage(ctx, prompt)
		s.completeImage(gen, payload, err)
	}, func(reason string) {
		s.completeImage(gen, "", fmt.Errorf("%s", reason))
	})
	return true
}

// DismissImage clears the preview back to idle. An in-flight preview request
// is not cancelled. Returns false if the image machine was already idle.
func (s *Session) DismissImage() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.image.State().Status == StatusIdle {
		return false
	}
	s.image.Dismiss()
	s.changedLocked()
	return true
}

// Snapshot returns the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe returns a channel that receives the latest snapshot after every
// state change. Slow readers only see the most recent snapshot. The returned
// func unsubscribes and closes the channel.
func (s *Session) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subscribers, id)
			s.mu.Unlock()
			close(ch)
		})
	}
}

// Wait blocks until every client call started by this session has completed.
func (s *Session) Wait() {
	s.inflight.Wait()
}

func (s *Session) completePrompt(gen uint64, prompt string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var applied bool
	if err != nil {
		applied = s.prompt.Reject(gen, errorMessage(err, promptFailedMessage))
	} else {
		applied = s.prompt.Resolve(gen, prompt)
	}
	s.logCompletion("prompt", gen, applied, err)
	if applied {
		s.changedLocked()
	}
}

func (s *Session) completeImage(gen uint64, payload string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var applied bool
	if err == nil && payload == "" {
		err = fmt.Errorf("%s", imageFailedMessage)
	}
	if err != nil {
		applied = s.image.Reject(gen, errorMessage(err, imageFailedMessage))
	} else {
		applied = s.image.Resolve(gen, payload)
	}
	s.logCompletion("image", gen, applied, err)
	if applied {
		s.changedLocked()
	}
}

func (s *Session) logCompletion(kind string, gen uint64, applied bool, err error) {
	event := log.Info()
	if err != nil {
		event = log.Warn().Err(err)
	}
	if !applied {
		event = log.Debug()
	}
	event.
		Str("session_id", s.id.String()).
		Str("request", kind).
		Uint64("generation", gen).
		Bool("applied", applied).
		Msg("Request completed")
}

// run executes call on its own goroutine under the session context. A panic
// in call is reported through onPanic instead of crashing the process.
func (s *Session) run(call func(ctx context.Context), onPanic func(reason string)) {
	s.inflight.Add(1)
	if s.tracker != nil {
		s.tracker.Add(1)
	}
	go func() {
		defer s.inflight.Done()
		if s.tracker != nil {
			defer s.tracker.Done()
		}
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Str("session_id", s.id.String()).Msg("Client call panicked")
				onPanic("")
			}
		}()

		ctx := s.baseCtx
		if s.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.timeout)
			defer cancel()
		}
		call(ctx)
	}()
}

func (s *Session) canGenerateImageLocked() bool {
	st := s.prompt.State()
	if st.Status != StatusSuccess || s.image.Pending() {
		return false
	}
	return strings.TrimSpace(st.Value) != "" && st.Value != llm.FallbackPrompt
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		ID:                s.id,
		Description:       s.description,
		Prompt:            s.prompt.State(),
		Image:             s.image.State(),
		CanGeneratePrompt: !s.prompt.Pending(),
		CanGenerateImage:  s.canGenerateImageLocked(),
		UpdatedAt:         s.updatedAt,
	}
}

// changedLocked stamps the session and pushes the new snapshot to subscribers.
func (s *Session) changedLocked() {
	s.updatedAt = time.Now()
	snap := s.snapshotLocked()
	for _, ch := range s.subscribers {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

// errorMessage returns the user-facing text of err, or fallback when it has none.
func errorMessage(err error, fallback string) string {
	if msg := strings.TrimSpace(llm.Message(err)); msg != "" {
		return msg
	}
	return fallback
}
