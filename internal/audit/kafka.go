package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/treestandk/wingman/internal/logger"
)

const kafkaWriteTimeout = 5 * time.Second

// messageWriter is the slice of kafka.Writer the sink needs; tests swap in
// a capture.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink mirrors audit events onto a Kafka topic for downstream
// consumers. Best effort: a broker outage costs events on the topic, never
// a request.
type KafkaSink struct {
	writer messageWriter
}

func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{
		writer: kafka.NewWriter(kafka.WriterConfig{
			Brokers:      brokers,
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 10 * time.Millisecond,
			WriteTimeout: kafkaWriteTimeout,
			Async:        false,
		}),
	}
}

func (s *KafkaSink) Record(ctx context.Context, event Event) {
	value, err := json.Marshal(event)
	if err != nil {
		logger.WithField("audit_id", event.ID).Warn("Failed to encode audit event")
		return
	}

	writeCtx, cancel := context.WithTimeout(ctx, kafkaWriteTimeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(event.Action),
		Value: value,
		Time:  event.Timestamp,
	}
	if err := s.writer.WriteMessages(writeCtx, msg); err != nil {
		logger.WithFields(map[string]interface{}{
			"audit_id": event.ID,
			"action":   event.Action,
			"error":    err.Error(),
		}).Warn("Failed to stream audit event")
	}
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
