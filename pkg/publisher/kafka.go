// Package publisher streams run outcomes to Kafka, one message per device.
package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/andrej220/confaudit/internal/lg"
	dm "github.com/andrej220/confaudit/pkg/shared-models"
)

const defaultWriteTimeout = 30 * time.Second

type messageWriter interface {
	WriteMessages(context.Context, ...kafka.Message) error
	Close() error
}

// Event is the message value. The message key is the host so all events of
// one device land on the same partition.
type Event struct {
	RunID string  `json:"runId"`
	Mode  dm.Mode `json:"mode"`
	Seq   int     `json:"seq"`
	dm.Outcome
}

type Producer struct {
	writer       messageWriter
	topic        string
	writeTimeout time.Duration
	lg           lg.Logger
}

func NewKafkaProducer(brokers []string, topic string, writeTimeout time.Duration, logger lg.Logger) *Producer {
	return newProducer(&kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		Async:                  false,
		AllowAutoTopicCreation: true,
	}, topic, writeTimeout, logger)
}

func newProducer(w messageWriter, topic string, writeTimeout time.Duration, logger lg.Logger) *Producer {
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}
	if logger == nil {
		logger = lg.Discard
	}
	return &Producer{writer: w, topic: topic, writeTimeout: writeTimeout, lg: logger}
}

func (p *Producer) Name() string { return "kafka" }

// Publish writes all outcomes as one synchronous batch.
func (p *Producer) Publish(ctx context.Context, runID string, mode dm.Mode, outcomes []dm.Outcome) error {
	if len(outcomes) == 0 {
		return nil
	}
	now := time.Now()
	msgs := make([]kafka.Message, 0, len(outcomes))
	for i, o := range outcomes {
		value, err := json.Marshal(Event{RunID: runID, Mode: mode, Seq: i, Outcome: o})
		if err != nil {
			return fmt.Errorf("encode outcome for %s: %w", o.Host, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(o.Host),
			Value: value,
			Time:  now,
			Headers: []kafka.Header{
				{Key: "run_id", Value: []byte(runID)},
				{Key: "mode", Value: []byte(mode)},
				{Key: "failed", Value: []byte(strconv.FormatBool(o.Failed(mode)))},
			},
		})
	}

	ctx, cancel := context.WithTimeout(ctx, p.writeTimeout)
	defer cancel()
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		if errors.Is(err, kafka.UnknownTopicOrPartition) {
			p.lg.Error("Kafka topic does not exist",
				lg.String("topic", p.topic),
				lg.String("action", "Create the topic manually or enable auto-creation"))
		}
		return fmt.Errorf("write %d messages to %s: %w", len(msgs), p.topic, err)
	}
	p.lg.Debug("outcomes written", lg.String("topic", p.topic), lg.Int("messages", len(msgs)))
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
