package events

import (
	"encoding/json"
	"fmt"

	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

// Bus is the subset of the RabbitMQ client the notifier needs.
type Bus interface {
	Publish(body []byte) error
	Subscribe(handler func(msg amqp.Delivery) error) error
}

// RabbitMQNotifier broadcasts listing invalidations to other instances and
// applies theirs to a local sink.
type RabbitMQNotifier struct {
	bus        Bus
	instanceID string
	logger     *zap.Logger
}

// NewRabbitMQNotifier creates a notifier publishing as instanceID.
func NewRabbitMQNotifier(bus Bus, instanceID string, logger *zap.Logger) *RabbitMQNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RabbitMQNotifier{
		bus:        bus,
		instanceID: instanceID,
		logger:     logger,
	}
}

// InvalidateListing publishes a ListingInvalidated event. Publish failures
// are logged only.
func (n *RabbitMQNotifier) InvalidateListing() {
	event := NewListingInvalidated(n.instanceID)
	body, err := json.Marshal(event)
	if err != nil {
		n.logger.Error("Failed to marshal listing event", zap.Error(err))
		return
	}
	if err := n.bus.Publish(body); err != nil {
		n.logger.Error("Failed to publish listing event", zap.String("event_id", event.EventID), zap.Error(err))
		return
	}
	n.logger.Debug("Listing event published", zap.String("event_id", event.EventID))
}

// Subscribe invalidates local whenever another instance reports a change.
func (n *RabbitMQNotifier) Subscribe(local Invalidator) error {
	return n.bus.Subscribe(func(msg amqp.Delivery) error {
		return n.handle(msg.Body, local)
	})
}

func (n *RabbitMQNotifier) handle(body []byte, local Invalidator) error {
	var event ListingInvalidated
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("failed to decode listing event: %w", err)
	}
	if event.Type != ListingInvalidatedType {
		return fmt.Errorf("unexpected event type %q", event.Type)
	}
	if event.Source == n.instanceID {
		return nil
	}
	n.logger.Debug("Listing invalidated by peer",
		zap.String("event_id", event.EventID),
		zap.String("source", event.Source))
	local.InvalidateListing()
	return nil
}
