package repository

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgkafka "github.com/NayellyZurita/CRE-Market-Signals/pkg/kafka"
)

type fakeProducer struct {
	topic  string
	msgs   []pkgkafka.Message
	err    error
	closed bool
}

func (f *fakeProducer) PublishBatch(_ context.Context, topic string, messages []pkgkafka.Message) error {
	f.topic = topic
	f.msgs = append(f.msgs, messages...)
	return f.err
}

func (f *fakeProducer) Close() error {
	f.closed = true
	return nil
}

func TestKafkaSignalPublisher(t *testing.T) {
	fp := &fakeProducer{}
	pub := NewKafkaSignalPublisher(fp, "market-signals")

	require.NoError(t, pub.PublishSignals(context.Background(), "run-1", nil))
	assert.Empty(t, fp.msgs)

	require.NoError(t, pub.PublishSignals(context.Background(), "run-1", scenarioSignals(t)))
	assert.Equal(t, "market-signals", fp.topic)
	require.Len(t, fp.msgs, 3)
	assert.Equal(t, "county:49-035", string(fp.msgs[0].Key))
	assert.Equal(t, "hud_fmr", fp.msgs[0].Headers["source"])

	b, err := json.Marshal(fp.msgs[2].Value)
	require.NoError(t, err)
	var ev struct {
		RunID  string `json:"run_id"`
		Signal struct {
			Source string  `json:"source"`
			Value  float64 `json:"value"`
		} `json:"signal"`
	}
	require.NoError(t, json.Unmarshal(b, &ev))
	assert.Equal(t, "run-1", ev.RunID)
	assert.Equal(t, "fred", ev.Signal.Source)
	assert.Equal(t, 3.4, ev.Signal.Value)

	require.NoError(t, pub.Close())
	assert.True(t, fp.closed)
}

func TestKafkaSignalPublisherPropagatesErrors(t *testing.T) {
	boom := errors.New("broker down")
	pub := NewKafkaSignalPublisher(&fakeProducer{err: boom}, "t")
	assert.ErrorIs(t, pub.PublishSignals(context.Background(), "r", scenarioSignals(t)), boom)
}
