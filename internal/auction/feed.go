package auction

import "sync"

// Subscription is an unbounded mailbox of coordinator events. Publishing
// never blocks, so a slow reader cannot stall bid evaluation.
type Subscription struct {
	mu      sync.Mutex
	queue   []Event
	done    bool
	retired bool
	notify  chan struct{}
}

func newSubscription() *Subscription {
	return &Subscription{notify: make(chan struct{}, 1)}
}

// Notify is signalled whenever events are queued or the feed ends.
func (s *Subscription) Notify() <-chan struct{} {
	return s.notify
}

// Drain takes every queued event. done reports that no further events will
// follow; retired reports that the coordinator itself was released.
func (s *Subscription) Drain() (events []Event, done, retired bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	events, s.queue = s.queue, nil
	return events, s.done, s.retired
}

func (s *Subscription) push(ev Event) {
	s.mu.Lock()
	if !s.done {
		s.queue = append(s.queue, ev)
	}
	s.mu.Unlock()
	s.signal()
}

func (s *Subscription) end(retired bool) {
	s.mu.Lock()
	s.done = true
	if retired {
		s.retired = true
	}
	s.mu.Unlock()
	s.signal()
}

func (s *Subscription) signal() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}
