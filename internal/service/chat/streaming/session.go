// Package streaming holds the live event stream of an in-flight agent run and
// lets any number of subscribers attach to it, including after the run has
// finished.
package streaming

import (
	"context"
	"sync"

	"kakehashi/internal/domain/models/chat"
)

// Session is the event stream of one agent run.
//
// Events are appended to an in-memory history; subscribers replay the full
// history from the beginning and then follow live appends. This makes
// re-attachment safe: a client that reconnects mid-run (or after the run has
// settled) sees every event, in order, ending with the terminal settled event.
type Session struct {
	owner string

	mu      sync.Mutex
	events  []chat.StreamEvent
	notify  chan struct{} // closed and replaced on every append
	settled bool
}

// NewSession creates an empty session owned by the given user.
func NewSession(owner string) *Session {
	return &Session{
		owner:  owner,
		notify: make(chan struct{}),
	}
}

// Owner returns the user the session belongs to. Only the owner may attach
// to the stream.
func (s *Session) Owner() string {
	return s.owner
}

// Emit appends a non-terminal event. Events emitted after the session has
// settled are dropped; the settled event is authoritative and must stay last.
func (s *Session) Emit(event chat.StreamEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.settled {
		return
	}
	s.append(event)
}

// Settle appends the terminal settled event exactly once. Subsequent calls
// are no-ops.
func (s *Session) Settle(settled chat.Settled) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.settled {
		return
	}
	s.settled = true
	s.append(chat.NewSettledEvent(settled))
}

// Settled reports whether the terminal event has been appended.
func (s *Session) Settled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settled
}

// append adds the event and wakes all waiting subscribers.
// Caller must hold s.mu.
func (s *Session) append(event chat.StreamEvent) {
	s.events = append(s.events, event)
	close(s.notify)
	s.notify = make(chan struct{})
}

// Subscribe returns a channel that replays the session's history from the
// beginning and then follows live events. The channel closes after the
// terminal settled event, or when ctx is cancelled.
func (s *Session) Subscribe(ctx context.Context) <-chan chat.StreamEvent {
	out := make(chan chat.StreamEvent)

	go func() {
		defer close(out)

		next := 0
		for {
			s.mu.Lock()
			events := s.events[next:]
			done := s.settled
			wait := s.notify
			s.mu.Unlock()

			next += len(events)

			for _, event := range events {
				select {
				case <-ctx.Done():
					return
				case out <- event:
				}
			}

			// History includes the settled event once done is set, so all
			// events up to and including the terminal one have been sent.
			if done {
				return
			}

			select {
			case <-ctx.Done():
				return
			case <-wait:
			}
		}
	}()

	return out
}
