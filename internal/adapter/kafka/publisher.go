package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/couchcryptid/seismic-alert-service/internal/config"
	"github.com/couchcryptid/seismic-alert-service/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// DeliveryNotice is the payload written for every ledger append.
type DeliveryNotice struct {
	TenantID   string    `json:"tenant_id"`
	SourceID   string    `json:"source_id"`
	Authority  string    `json:"authority"`
	Delivered  bool      `json:"delivered"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Publisher produces delivery notices to a Kafka topic.
// It implements pipeline.DeliveryPublisher.
type Publisher struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewPublisher creates a Kafka producer for the configured delivery topic.
func NewPublisher(cfg *config.Config, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaDeliveryTopic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Publisher{writer: w, logger: logger}
}

// PublishDelivery writes one message for rec. Messages for the same tenant
// land on the same partition.
func (p *Publisher) PublishDelivery(ctx context.Context, rec domain.DeliveryRecord) error {
	msg, err := serializeToMessage(rec)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish delivery %s/%s: %w", rec.TenantID, rec.SourceID, err)
	}
	p.logger.Debug("delivery published", "tenant_id", rec.TenantID, "source_id", rec.SourceID)
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

func serializeToMessage(rec domain.DeliveryRecord) (kafkago.Message, error) {
	notice := DeliveryNotice{
		TenantID:   rec.TenantID,
		SourceID:   rec.SourceID,
		Authority:  rec.Authority,
		Delivered:  rec.Delivered,
		RecordedAt: rec.Timestamp.UTC(),
	}
	data, err := json.Marshal(notice)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize delivery notice: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(rec.TenantID + "/" + rec.SourceID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "tenant_id", Value: []byte(rec.TenantID)},
			{Key: "delivered", Value: []byte(strconv.FormatBool(rec.Delivered))},
			{Key: "recorded_at", Value: []byte(notice.RecordedAt.Format(time.RFC3339))},
		},
	}, nil
}
