package events

import "sync"

const (
	KindProject = "project"
	KindTask    = "task"
	KindVote    = "vote"
	KindGate    = "gate"
)

// Change describes a committed mutation.
type Change struct {
	Kind      string
	ProjectID string
	TaskID    string
}

// Bus fans committed changes out to in-process subscribers. Delivery never
// blocks the publisher: a subscriber whose buffer is full misses the change.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]chan Change
}

func NewBus() *Bus {
	return &Bus{subs: map[int]chan Change{}}
}

// Subscribe returns a channel of changes and a function that detaches it.
func (b *Bus) Subscribe(buffer int) (<-chan Change, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Change, buffer)
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Publish is safe on a nil Bus.
func (b *Bus) Publish(c Change) {
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- c:
		default:
		}
	}
}
