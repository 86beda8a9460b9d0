package annotate

import (
	"sort"
	"sync"
)

// StepEvent signals that the presentation advanced one inner step. An empty
// Slide targets the active slide.
type StepEvent struct {
	Slide string
}

// StepSource delivers step-advance events from a presentation runtime.
type StepSource interface {
	// Subscribe registers fn and returns a function removing it.
	Subscribe(fn func(StepEvent)) (cancel func())
}

// StepBus is a StepSource fed by Publish. The zero value is ready to use.
type StepBus struct {
	mu       sync.Mutex
	next     int
	handlers map[int]func(StepEvent)
}

var _ StepSource = (*StepBus)(nil)

// Subscribe implements StepSource.
func (b *StepBus) Subscribe(fn func(StepEvent)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.handlers == nil {
		b.handlers = make(map[int]func(StepEvent))
	}
	id := b.next
	b.next++
	b.handlers[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.handlers, id)
			b.mu.Unlock()
		})
	}
}

// Publish delivers ev to every subscriber in subscription order.
func (b *StepBus) Publish(ev StepEvent) {
	b.mu.Lock()
	ids := make([]int, 0, len(b.handlers))
	for id := range b.handlers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(StepEvent), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, b.handlers[id])
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
