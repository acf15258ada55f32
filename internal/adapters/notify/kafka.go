package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lcalzada-xor/meshmon/internal/core/ports"
	"github.com/segmentio/kafka-go"
)

// messageWriter is the subset of *kafka.Writer the notifier needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// alertMessage is the JSON value published for every alert transition.
type alertMessage struct {
	ID       string    `json:"id"`
	Level    string    `json:"level"`
	Status   string    `json:"status"`
	Title    string    `json:"title"`
	Node     string    `json:"node,omitempty"`
	NodeName string    `json:"node_name,omitempty"`
	Mesh     string    `json:"mesh,omitempty"`
	Message  string    `json:"message"`
	At       time.Time `json:"at"`
}

// KafkaNotifier publishes alert transitions to a Kafka topic, keyed by scope
// so that one scope's events stay ordered within a partition.
type KafkaNotifier struct {
	writer   messageWriter
	maxRetry int
}

// NewKafkaNotifier creates a producer for the given brokers and topic.
func NewKafkaNotifier(brokers []string, topic string) *KafkaNotifier {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	return &KafkaNotifier{writer: writer, maxRetry: 3}
}

// Notify publishes events, retrying with exponential backoff.
func (n *KafkaNotifier) Notify(ctx context.Context, events []ports.AlertEvent) error {
	if len(events) == 0 {
		return nil
	}

	messages := make([]kafka.Message, 0, len(events))
	for _, ev := range events {
		value, err := json.Marshal(alertMessage{
			ID:       ev.Alert.ID,
			Level:    ev.Alert.Level.String(),
			Status:   ev.Alert.Status.String(),
			Title:    ev.Alert.Title,
			Node:     ev.Alert.NodeMAC,
			NodeName: ev.Alert.NodeName,
			Mesh:     ev.Alert.MeshName,
			Message:  ev.Message,
			At:       ev.At,
		})
		if err != nil {
			return fmt.Errorf("encode alert %s: %w", ev.Alert.ID, err)
		}
		messages = append(messages, kafka.Message{
			Key:   []byte(ev.Alert.Scope().Key()),
			Value: value,
			Time:  ev.At,
		})
	}

	var err error
	for i := 0; i < n.maxRetry; i++ {
		if err = n.writer.WriteMessages(ctx, messages...); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(1<<uint(i)) * 100 * time.Millisecond):
		}
	}
	return fmt.Errorf("publish %d alert events: %w", len(messages), err)
}

// Close flushes and closes the producer.
func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}

var _ ports.AlertNotifier = (*KafkaNotifier)(nil)
