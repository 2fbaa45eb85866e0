package events

import (
	"sync"
)

// Topics emitted by the shadow reporter.
const (
	TopicOK       = "shadow_traffic.ok"
	TopicMismatch = "shadow_traffic.mismatch"
	TopicError    = "shadow_traffic.error"
)

// Subscriber receives published events for one or more topics.
type Subscriber func(topic string, payload interface{})

// Bus is a minimal in-process pub/sub fan-out. Publish never blocks on a
// subscriber and never lets a subscriber panic reach the publisher; the
// reporter relies on this to keep the primary request path safe.
type Bus struct {
	mu   sync.RWMutex
	subs map[string][]Subscriber
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string][]Subscriber)}
}

// Subscribe registers fn for the given topic.
func (b *Bus) Subscribe(topic string, fn Subscriber) {
	if fn == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[topic] = append(b.subs[topic], fn)
}

// Publish delivers payload to every subscriber of topic, in registration
// order, swallowing subscriber panics.
func (b *Bus) Publish(topic string, payload interface{}) {
	b.mu.RLock()
	subs := b.subs[topic]
	b.mu.RUnlock()

	for _, fn := range subs {
		safeInvoke(fn, topic, payload)
	}
}

func safeInvoke(fn Subscriber, topic string, payload interface{}) {
	defer func() {
		_ = recover()
	}()
	fn(topic, payload)
}
