// Package notify delivers leave events to logs, Kafka, or several sinks at once.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/warp/leave-engine/domain"
)

// LogNotifier writes every event as a structured log line.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.L()
	}
	return &LogNotifier{logger: logger.Named("notify.log")}
}

func (n *LogNotifier) Notify(_ context.Context, e domain.Event) error {
	fields := []zap.Field{
		zap.String("event", string(e.Type)),
		zap.String("company_id", string(e.CompanyID)),
		zap.String("employee_id", string(e.EmployeeID)),
		zap.String("request_id", string(e.RequestID)),
		zap.String("leave_type", string(e.LeaveType)),
		zap.String("actor_id", e.ActorID),
	}
	if e.Balance != nil {
		fields = append(fields, zap.String("balance", e.Balance.String()))
	}
	for k, v := range e.Attributes {
		fields = append(fields, zap.String("attr."+k, v))
	}
	n.logger.Info("leave event", fields...)
	return nil
}

// MessageWriter is the subset of *kafka.Writer the Kafka sink uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier publishes events as JSON keyed by employee, so one
// employee's events stay ordered within a partition.
type KafkaNotifier struct {
	writer  MessageWriter
	timeout time.Duration
}

// NewKafkaWriter builds the writer used in production.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
}

func NewKafkaNotifier(writer MessageWriter) *KafkaNotifier {
	return &KafkaNotifier{writer: writer, timeout: 5 * time.Second}
}

func (n *KafkaNotifier) Notify(ctx context.Context, e domain.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", e.Type, err)
	}
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	return n.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(string(e.CompanyID) + ":" + string(e.EmployeeID)),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(e.Type)},
			{Key: "company_id", Value: []byte(e.CompanyID)},
		},
		Time: e.OccurredAt,
	})
}

func (n *KafkaNotifier) Close() error { return n.writer.Close() }

// Multi fans an event out to every sink and joins their errors.
type Multi []domain.Notifier

func (m Multi) Notify(ctx context.Context, e domain.Event) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
