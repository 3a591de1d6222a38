package events

import (
	"context"
	"encoding/json"
	"time"

	kafkago "github.com/segmentio/kafka-go"
)

// Producer publishes canonical records after they commit, feeding the
// notification pipeline and anything else downstream. Callers treat
// publication as fire-and-forget; a durable mutation never fails because
// the bus is down.
type Producer struct {
	writer *kafkago.Writer
}

type Record struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

func NewProducer(brokers []string, topic string) *Producer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
		Async:        false,
	}
	return &Producer{writer: w}
}

func (p *Producer) Publish(ctx context.Context, key, event string, payload any) error {
	b, err := json.Marshal(Record{Event: event, Payload: payload})
	if err != nil {
		return err
	}
	msg := kafkago.Message{
		Key:   []byte(key),
		Value: b,
		Time:  time.Now(),
	}
	return p.writer.WriteMessages(ctx, msg)
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
