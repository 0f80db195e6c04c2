package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/use-agent/maprank/config"
	"github.com/use-agent/maprank/metrics"
	"github.com/use-agent/maprank/models"
)

// messageWriter is the part of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// RowMessage is the JSON value of one published result row.
type RowMessage struct {
	JobID   string              `json:"job_id"`
	Index   int                 `json:"index"`
	Query   string              `json:"query"`
	Target  string              `json:"target"`
	Outcome models.Outcome      `json:"outcome"`
	Error   *models.ErrorDetail `json:"error,omitempty"`
}

// KafkaPublisher writes result rows to a topic, one message per row keyed by
// job ID so a job's rows stay in one partition and in order.
type KafkaPublisher struct {
	writer  messageWriter
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewKafkaPublisher creates a publisher for cfg.Topic on cfg.Brokers.
func NewKafkaPublisher(cfg config.KafkaConfig, m *metrics.Metrics) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		MaxAttempts:  3,
		RequiredAcks: kafka.RequireAll,
	}
	return newKafkaPublisher(w, cfg.Topic, m)
}

func newKafkaPublisher(w messageWriter, topic string, m *metrics.Metrics) *KafkaPublisher {
	return &KafkaPublisher{
		writer:  w,
		metrics: m,
		logger:  slog.Default().With("component", "kafka-publisher", "topic", topic),
	}
}

// PublishRows writes rows in a single call.
func (p *KafkaPublisher) PublishRows(ctx context.Context, jobID string, rows []models.ResultRow) error {
	if len(rows) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(rows))
	for i, row := range rows {
		value, err := json.Marshal(RowMessage{
			JobID:   jobID,
			Index:   i,
			Query:   row.Query,
			Target:  row.Target,
			Outcome: row.Outcome,
			Error:   row.Error,
		})
		if err != nil {
			return fmt.Errorf("marshaling row %d: %w", i, err)
		}
		msgs = append(msgs, kafka.Message{Key: []byte(jobID), Value: value})
	}

	err := p.writer.WriteMessages(ctx, msgs...)
	p.metrics.ObserveDelivery("kafka", err)
	if err != nil {
		p.logger.Error("failed to publish rows", "job_id", jobID, "count", len(msgs), "error", err)
		return fmt.Errorf("publishing rows to kafka: %w", err)
	}
	p.logger.Debug("rows published", "job_id", jobID, "count", len(msgs))
	return nil
}

// Close flushes pending writes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
