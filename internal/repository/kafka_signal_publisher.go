package repository

import (
	"context"
	"time"

	"github.com/NayellyZurita/CRE-Market-Signals/internal/domain/models"
	domrepo "github.com/NayellyZurita/CRE-Market-Signals/internal/domain/repository"
	pkgkafka "github.com/NayellyZurita/CRE-Market-Signals/pkg/kafka"
)

// batchProducer is the subset of pkg/kafka.Producer the publisher needs.
type batchProducer interface {
	PublishBatch(ctx context.Context, topic string, messages []pkgkafka.Message) error
	Close() error
}

// KafkaSignalPublisher announces upserted signals, one message per record,
// keyed by geography so a market's records stay on one partition.
type KafkaSignalPublisher struct {
	producer batchProducer
	topic    string
}

// NewKafkaSignalPublisher creates a Kafka publisher.
func NewKafkaSignalPublisher(producer batchProducer, topic string) domrepo.SignalPublisher {
	return &KafkaSignalPublisher{producer: producer, topic: topic}
}

type signalEvent struct {
	RunID       string              `json:"run_id"`
	PublishedAt time.Time           `json:"published_at"`
	Signal      models.MarketSignal `json:"signal"`
}

func (p *KafkaSignalPublisher) PublishSignals(ctx context.Context, runID string, signals []models.MarketSignal) error {
	if len(signals) == 0 {
		return nil
	}
	now := time.Now().UTC()
	msgs := make([]pkgkafka.Message, len(signals))
	for i, s := range signals {
		msgs[i] = pkgkafka.Message{
			Key:     []byte(s.GeoLevel + ":" + s.GeoID),
			Value:   signalEvent{RunID: runID, PublishedAt: now, Signal: s},
			Headers: map[string]string{"source": s.Source, "metric": s.Metric},
		}
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

func (p *KafkaSignalPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// NopSignalPublisher drops every batch. Used when no brokers are configured.
type NopSignalPublisher struct{}

func (NopSignalPublisher) PublishSignals(context.Context, string, []models.MarketSignal) error {
	return nil
}

func (NopSignalPublisher) Close() error { return nil }
