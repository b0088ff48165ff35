// Package events is a small in-process pub/sub bus. The command pipeline,
// module manager and registrar publish on it; logging, metrics and storage
// subscribe.
package events

import (
	"sync"
)

const (
	TopicCommandExecute     = "command:execute"
	TopicCommandHalt        = "command:halt"
	TopicModuleStateChange  = "module:state"
	TopicCommandsRegistered = "commands:registered"

	defaultBufferSize = 128
)

// Publisher is what producers depend on.
type Publisher interface {
	Publish(topic string, payload any)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(string, any) {}

// DropFunc is called when a subscriber's buffer is full and an event is lost.
type DropFunc func(topic string, total uint64)

// Bus fans events out to buffered subscriber channels. Publish never blocks;
// a slow subscriber loses events instead of stalling the pipeline.
type Bus struct {
	mu        sync.RWMutex
	subs      map[string]map[int]chan any
	nextSubID int
	closed    bool

	dropMu     sync.Mutex
	dropCounts map[string]uint64
	onDrop     DropFunc
}

// NewBus returns an empty bus. onDrop may be nil.
func NewBus(onDrop DropFunc) *Bus {
	return &Bus{
		subs:       make(map[string]map[int]chan any),
		dropCounts: make(map[string]uint64),
		onDrop:     onDrop,
	}
}

// Publish delivers payload to every current subscriber of topic.
func (b *Bus) Publish(topic string, payload any) {
	if topic == "" {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs[topic] {
		select {
		case ch <- payload:
		default:
			b.recordDrop(topic)
		}
	}
}

// Subscribe returns a channel receiving events of topic and a function that
// unsubscribes and closes it.
func (b *Bus) Subscribe(topic string) (<-chan any, func()) {
	ch := make(chan any, defaultBufferSize)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[int]chan any)
	}
	id := b.nextSubID
	b.nextSubID++
	b.subs[topic][id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if subs, ok := b.subs[topic]; ok {
				if _, live := subs[id]; live {
					delete(subs, id)
					close(ch)
				}
				if len(subs) == 0 {
					delete(b.subs, topic)
				}
			}
		})
	}
	return ch, unsubscribe
}

// Close closes every subscriber channel; later publishes are dropped.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for topic, subs := range b.subs {
		for id, ch := range subs {
			close(ch)
			delete(subs, id)
		}
		delete(b.subs, topic)
	}
}

// Dropped returns how many events of topic were lost to full buffers.
func (b *Bus) Dropped(topic string) uint64 {
	b.dropMu.Lock()
	defer b.dropMu.Unlock()
	return b.dropCounts[topic]
}

func (b *Bus) recordDrop(topic string) {
	b.dropMu.Lock()
	b.dropCounts[topic]++
	total := b.dropCounts[topic]
	b.dropMu.Unlock()
	if b.onDrop != nil {
		b.onDrop(topic, total)
	}
}
