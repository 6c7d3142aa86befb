package bus

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/explorer/internal/domain"
)

// New creates a new event bus based on configuration.
// For Community tier: returns ChannelBus.
// For Pro tier: returns NATSBus.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "channel", "":
		return NewChannelBus(cfg.ChannelBufferSize), nil

	case "nats":
		return NewNATSBus(cfg)

	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}

// source identifies this process in message metadata.
var source = func() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "explorer"
	}
	return fmt.Sprintf("%s/%d", host, os.Getpid())
}()

// Source returns the identifier this process stamps on published messages.
func Source() string {
	return source
}

// FromSelf reports whether msg was published by this process.
func FromSelf(msg *domain.Message) bool {
	return msg != nil && msg.Metadata["source"] == source
}

// newMessage wraps a payload in the bus envelope.
func newMessage(topic string, payload []byte) *domain.Message {
	return &domain.Message{
		ID:        uuid.New().String(),
		Topic:     topic,
		Payload:   payload,
		Metadata:  map[string]string{"source": source},
		Timestamp: time.Now().UnixNano(),
	}
}
