// Package eventbus fans server events out to channel subscribers. Subscriptions use
// topic patterns split on ':' so "dataset:*" receives every dataset event.
package eventbus

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Event is one server event with its raw JSON arguments.
type Event struct {
	Name string
	Args []json.RawMessage
}

type subscriber struct {
	id      string
	pattern string
	ch      chan Event

	mu     sync.Mutex
	closed bool
}

// send delivers ev, giving up after timeout when the subscriber's buffer is full.
func (s *subscriber) send(ev Event, timeout time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	select {
	case s.ch <- ev:
		return true
	default:
	}
	if timeout <= 0 {
		return false
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case s.ch <- ev:
		return true
	case <-t.C:
		return false
	}
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// Bus is safe for concurrent use.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]*subscriber // pattern -> id -> subscriber
	counter     uint64
	dropped     uint64
}

func New() *Bus {
	return &Bus{subscribers: make(map[string]map[string]*subscriber)}
}

// Subscribe returns a channel receiving the events matching pattern, and a function
// that cancels the subscription and closes the channel.
func (b *Bus) Subscribe(pattern string, bufferSize int) (<-chan Event, func()) {
	if bufferSize < 0 {
		bufferSize = 0
	}
	id := fmt.Sprintf("sub-%d", atomic.AddUint64(&b.counter, 1))
	sub := &subscriber{
		id:      id,
		pattern: pattern,
		ch:      make(chan Event, bufferSize),
	}

	b.mu.Lock()
	if _, ok := b.subscribers[pattern]; !ok {
		b.subscribers[pattern] = make(map[string]*subscriber)
	}
	b.subscribers[pattern][id] = sub
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if subs, ok := b.subscribers[pattern]; ok {
			if s, ok := subs[id]; ok {
				s.close()
				delete(subs, id)
				if len(subs) == 0 {
					delete(b.subscribers, pattern)
				}
			}
		}
	}
	return sub.ch, unsubscribe
}

// Publish delivers ev to every matching subscriber. A subscriber whose buffer stays
// full for timeout misses the event.
func (b *Bus) Publish(ev Event, timeout time.Duration) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for pattern, subs := range b.subscribers {
		if !Match(pattern, ev.Name) {
			continue
		}
		for _, s := range subs {
			if !s.send(ev, timeout) {
				atomic.AddUint64(&b.dropped, 1)
			}
		}
	}
}

// Dropped returns the number of deliveries missed by slow or closed subscribers.
func (b *Bus) Dropped() uint64 {
	return atomic.LoadUint64(&b.dropped)
}

// Shutdown closes every subscription.
func (b *Bus) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, subs := range b.subscribers {
		for _, s := range subs {
			s.close()
		}
	}
	b.subscribers = make(map[string]map[string]*subscriber)
}

// Match reports whether event matches pattern. "*" matches everything; otherwise
// pattern and event must have the same number of ':' separated parts, and a "*" part
// matches any single part.
func Match(pattern, event string) bool {
	if pattern == "" || event == "" {
		return false
	}
	if pattern == "*" || pattern == event {
		return true
	}
	pp := strings.Split(pattern, ":")
	ep := strings.Split(event, ":")
	if len(pp) != len(ep) {
		return false
	}
	for i := range pp {
		if pp[i] != "*" && pp[i] != ep[i] {
			return false
		}
	}
	return true
}
