package events

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// DefaultKafkaTopic is the topic listing events are written to.
const DefaultKafkaTopic = "product-listing-events"

const kafkaWriteTimeout = 10 * time.Second

// MessageWriter is the subset of *kafka.Writer the notifier needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier writes listing invalidations to a Kafka topic for consumers
// outside this service.
type KafkaNotifier struct {
	writer     MessageWriter
	instanceID string
	logger     *zap.Logger
}

// NewKafkaWriter creates an asynchronous writer; delivery errors are
// reported through the logger.
func NewKafkaWriter(brokers, topic string, logger *zap.Logger) *kafka.Writer {
	if topic == "" {
		topic = DefaultKafkaTopic
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &kafka.Writer{
		Addr:         kafka.TCP(strings.Split(brokers, ",")...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		Async:        true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Error("Failed to deliver listing events", zap.Int("count", len(messages)), zap.Error(err))
			}
		},
	}
}

// NewKafkaNotifier creates a notifier publishing as instanceID.
func NewKafkaNotifier(writer MessageWriter, instanceID string, logger *zap.Logger) *KafkaNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaNotifier{
		writer:     writer,
		instanceID: instanceID,
		logger:     logger,
	}
}

// InvalidateListing writes a ListingInvalidated event keyed by event id.
func (n *KafkaNotifier) InvalidateListing() {
	event := NewListingInvalidated(n.instanceID)
	value, err := json.Marshal(event)
	if err != nil {
		n.logger.Error("Failed to marshal listing event", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), kafkaWriteTimeout)
	defer cancel()

	err = n.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.EventID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(event.Type)},
		},
	})
	if err != nil {
		n.logger.Error("Failed to publish listing event", zap.String("event_id", event.EventID), zap.Error(err))
	}
}

// Close flushes and closes the underlying writer.
func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}
