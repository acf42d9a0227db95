package identity

import (
	"slices"
	"sync"
)

// Notifier fans events out to subscribers. Zero value is ready to use.
type Notifier struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]func(Event)
}

// Subscribe registers fn and returns a function removing it
func (n *Notifier) Subscribe(fn func(Event)) func() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.subs == nil {
		n.subs = make(map[int]func(Event))
	}
	id := n.nextID
	n.nextID++
	n.subs[id] = fn

	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.subs, id)
	}
}

// Emit calls every subscriber in registration order. Subscribers may call
// back into the provider; no lock is held while they run.
func (n *Notifier) Emit(e Event) {
	n.mu.Lock()
	ids := make([]int, 0, len(n.subs))
	for id := range n.subs {
		ids = append(ids, id)
	}
	n.mu.Unlock()

	slices.Sort(ids)
	for _, id := range ids {
		n.mu.Lock()
		fn, ok := n.subs[id]
		n.mu.Unlock()
		if ok {
			fn(e)
		}
	}
}
