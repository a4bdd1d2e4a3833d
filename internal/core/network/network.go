package network

// Message is one sample received on a topic.
type Message struct {
	Topic   string
	Payload []byte
}

// PubSub is the session the bridge publishes and subscribes through.
// Subscribe returns a channel that is closed when the subscription ends and
// a cancel func that ends it.
type PubSub interface {
	Publish(topic string, payload []byte) error
	Subscribe(topic string) (<-chan Message, func(), error)
}

// Session is a PubSub that owns network resources.
type Session interface {
	PubSub
	Close() error
}
