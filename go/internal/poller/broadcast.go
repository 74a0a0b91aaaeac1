package poller

import "sync"

// Broadcast fans updates out to any number of observers. Observers receive
// values, never the reducer's own state.
type Broadcast struct {
	mu   sync.RWMutex
	subs map[int]func(Update)
	next int
}

func NewBroadcast() *Broadcast {
	return &Broadcast{subs: make(map[int]func(Update))}
}

// Subscribe registers fn and returns a function that removes it.
func (b *Broadcast) Subscribe(fn func(Update)) func() {
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Publish calls every observer in turn. It matches the func(Update) shape so
// it can be passed straight to Scheduler.Start.
func (b *Broadcast) Publish(u Update) {
	b.mu.RLock()
	subs := make([]func(Update), 0, len(b.subs))
	for _, fn := range b.subs {
		subs = append(subs, fn)
	}
	b.mu.RUnlock()

	for _, fn := range subs {
		fn(u)
	}
}
