package sink

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/Sternrassler/fetch-dispatcher/pkg/result"
	"github.com/cockroachdb/errors"
	"github.com/segmentio/kafka-go"
)

// Message is the payload written for each response.
type Message struct {
	BatchID  string          `json:"batch_id"`
	Index    int             `json:"index"`
	Response result.Response `json:"response"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes one message per response, keyed by URL.
type KafkaPublisher struct {
	writer messageWriter
}

// NewKafkaPublisher creates a publisher for the given brokers and topic.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: false,
		},
	}
}

// NewKafkaPublisherWithWriter builds a publisher using a custom writer (tests).
func NewKafkaPublisherWithWriter(writer messageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: writer}
}

// Close shuts down the underlying writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Publish writes every response of batch in a single call.
func (p *KafkaPublisher) Publish(ctx context.Context, batch result.Batch) error {
	if batch.Len() == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, batch.Len())
	for i, r := range batch.Responses {
		payload, err := json.Marshal(Message{BatchID: batch.ID, Index: i, Response: r})
		if err != nil {
			return record("kafka", errors.Wrapf(err, "marshal response %d", i))
		}

		outcome := "failed"
		if r.IsSuccessful() {
			outcome = "successful"
		}

		msgs = append(msgs, kafka.Message{
			Key:   []byte(r.URL),
			Value: payload,
			Time:  r.Time().UTC(),
			Headers: []kafka.Header{
				{Key: "batch_id", Value: []byte(batch.ID)},
				{Key: "status", Value: []byte(strconv.Itoa(r.Status))},
				{Key: "outcome", Value: []byte(outcome)},
			},
		})
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return record("kafka", errors.Wrap(err, "kafka write"))
	}
	return record("kafka", nil)
}
