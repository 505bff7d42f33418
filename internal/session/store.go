package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"
	"github.com/snappy-loop/donghua/internal/agents"
)

// Store keeps live sessions in memory. Sessions idle for longer than the TTL
// are evicted; every Get extends the entry.
type Store struct {
	items   *cache.Cache
	agent   agents.CharacterAgent
	baseCtx context.Context
	timeout time.Duration

	// inflight counts calls of every session created here, evicted or not.
	inflight sync.WaitGroup
}

// NewStore creates a session store. baseCtx bounds every client call the
// sessions make; cancelling it aborts in-flight calls on shutdown.
func NewStore(baseCtx context.Context, agent agents.CharacterAgent, ttl, cleanupInterval, callTimeout time.Duration) *Store {
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}
	items := cache.New(ttl, cleanupInterval)
	items.OnEvicted(func(id string, _ interface{}) {
		log.Info().Str("session_id", id).Msg("Session evicted")
	})
	return &Store{
		items:   items,
		agent:   agent,
		baseCtx: baseCtx,
		timeout: callTimeout,
	}
}

// Create registers a new idle session.
func (s *Store) Create() *Session {
	sess := newTracked(s.baseCtx, s.agent, s.timeout, &s.inflight)
	s.items.SetDefault(sess.ID().String(), sess)
	log.Info().Str("session_id", sess.ID().String()).Msg("Session created")
	return sess
}

// Get returns the session with the given id and refreshes its expiry.
func (s *Store) Get(id uuid.UUID) (*Session, bool) {
	v, ok := s.items.Get(id.String())
	if !ok {
		return nil, false
	}
	sess := v.(*Session)
	s.items.SetDefault(id.String(), sess)
	return sess, true
}

// Len returns the number of live sessions, including expired ones not yet cleaned up.
func (s *Store) Len() int {
	return s.items.ItemCount()
}

// Wait blocks until every client call started by a session of this store
// finishes, including calls of sessions that have since expired.
func (s *Store) Wait() {
	s.inflight.Wait()
}
