package network

import (
	"errors"
	"sync"
)

var ErrClosed = errors.New("pubsub closed")

// subscriberBuffer is the per-subscription channel capacity of both sessions.
const subscriberBuffer = 64

// MemoryPubSub is a process-local session. Publishing never blocks: a
// subscriber whose buffer is full misses the sample.
type MemoryPubSub struct {
	mu     sync.RWMutex
	nextID int
	closed bool
	subs   map[string]map[int]chan Message
}

func NewMemoryPubSub() *MemoryPubSub {
	return &MemoryPubSub{subs: make(map[string]map[int]chan Message)}
}

func (m *MemoryPubSub) Publish(topic string, payload []byte) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	for _, ch := range m.subs[topic] {
		select {
		case ch <- Message{Topic: topic, Payload: append([]byte(nil), payload...)}:
		default:
		}
	}
	return nil
}

func (m *MemoryPubSub) Subscribe(topic string) (<-chan Message, func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, nil, ErrClosed
	}
	if _, ok := m.subs[topic]; !ok {
		m.subs[topic] = make(map[int]chan Message)
	}
	id := m.nextID
	m.nextID++
	ch := make(chan Message, subscriberBuffer)
	m.subs[topic][id] = ch

	cancel := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if byID, ok := m.subs[topic]; ok {
			if sub, exists := byID[id]; exists {
				delete(byID, id)
				close(sub)
			}
			if len(byID) == 0 {
				delete(m.subs, topic)
			}
		}
	}
	return ch, cancel, nil
}

// Close ends every subscription; later calls fail with ErrClosed.
func (m *MemoryPubSub) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	for topic, byID := range m.subs {
		for _, ch := range byID {
			close(ch)
		}
		delete(m.subs, topic)
	}
	return nil
}
