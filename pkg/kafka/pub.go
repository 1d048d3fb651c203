package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"firefeed/ingest"

	"github.com/segmentio/kafka-go"
)

// Publisher emits accepted items to a Kafka topic for downstream consumers
// (site API, chat bot). Messages are keyed by item id so one item's updates
// land on one partition.
type Publisher struct {
	writer *kafka.Writer
	topic  string
}

func NewPublisher(broker, topic string) (*Publisher, error) {
	if broker == "" {
		return nil, fmt.Errorf("kafka broker cannot be empty")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka topic cannot be empty")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := kafka.DialContext(ctx, "tcp", broker)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to kafka: %w", err)
	}
	conn.Close()

	return &Publisher{writer: newWriter(broker, topic), topic: topic}, nil
}

// newWriter builds the topic writer. The Hash balancer partitions by message
// key, which is what keying messages by item id relies on.
func newWriter(broker, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(broker),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
		Compression:  kafka.Snappy,
	}
}

type acceptedEvent struct {
	ID          string    `json:"id"`
	SourceID    string    `json:"source_id"`
	Language    string    `json:"language"`
	Title       string    `json:"title"`
	Link        string    `json:"link"`
	PublishedAt time.Time `json:"published_at"`
	Languages   []string  `json:"languages"`
}

func (p *Publisher) Publish(ctx context.Context, rec ingest.Record) error {
	ev := acceptedEvent{
		ID:          rec.Item.ID,
		SourceID:    rec.Item.SourceID,
		Language:    rec.Item.Language,
		Title:       rec.Item.Title,
		Link:        rec.Item.Link,
		PublishedAt: rec.Item.PublishedAt,
	}
	for lang, tr := range rec.Translations {
		if !tr.Title.Failed() && !tr.Body.Failed() {
			ev.Languages = append(ev.Languages, lang)
		}
	}

	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode event for %s: %w", rec.Item.ID, err)
	}

	msg := kafka.Message{
		Key:   []byte(rec.Item.ID),
		Value: raw,
		Time:  time.Now(),
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", p.topic, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	if p.writer != nil {
		return p.writer.Close()
	}
	return nil
}

var _ ingest.Publisher = (*Publisher)(nil)
