package session

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Store owns the session state. There is exactly one writer path,
// Dispatch, which applies events as indivisible replacements; any
// number of readers may take snapshots or subscribe to changes.
//
// Each in-flight auth operation obtains a generation from Begin and
// settles through DispatchAt. A completion from a superseded
// generation is discarded, so a stale response that arrives after a
// newer operation has started can never overwrite fresher state.
type Store struct {
	mu    sync.RWMutex
	state State
	gen   uint64

	nextSub int
	subs    map[int]chan State
}

// NewStore creates a store holding the initial loading state.
func NewStore() *Store {
	return &Store{
		state: Initial(),
		subs:  make(map[int]chan State),
	}
}

// State returns a snapshot of the current session.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Dispatch applies an event unconditionally.
func (s *Store) Dispatch(ev Event) {
	s.mu.Lock()
	s.state = Apply(s.state, ev)
	snapshot := s.state
	s.mu.Unlock()

	s.notify(snapshot)
}

// Begin starts a new operation generation, superseding any still
// outstanding. The returned generation is passed to DispatchAt when
// the operation settles.
func (s *Store) Begin() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	return s.gen
}

// DispatchAt applies an event only if gen is still the current
// generation. It reports whether the event was applied.
func (s *Store) DispatchAt(gen uint64, ev Event) bool {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		log.Debug().Uint64("gen", gen).Msg("discarding event from superseded operation")
		return false
	}
	s.state = Apply(s.state, ev)
	snapshot := s.state
	s.mu.Unlock()

	s.notify(snapshot)
	return true
}

// Subscribe registers a channel receiving every state change after
// the call. The returned cancel func must be called to release it.
func (s *Store) Subscribe() (<-chan State, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++

	ch := make(chan State, 16)
	s.subs[id] = ch

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if sub, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(sub)
		}
	}

	return ch, cancel
}

func (s *Store) notify(snapshot State) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, ch := range s.subs {
		select {
		case ch <- snapshot:
		default:
			// Slow subscriber, drop the update rather than block the writer.
		}
	}
}
