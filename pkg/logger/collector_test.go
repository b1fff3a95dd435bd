package logger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	mu      sync.Mutex
	topics  []string
	batches [][]AggregatedLogEntry
}

func (p *capturePublisher) PublishMessage(_ context.Context, topic string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.batches = append(p.batches, payload.([]AggregatedLogEntry))
	return nil
}

func TestCollectorAggregatesRepeats(t *testing.T) {
	pub := &capturePublisher{}
	c := NewLogCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 100, Topic: "logs", Publisher: pub})

	c.AddLog("warn", "HUD token missing", map[string]interface{}{"market": "a"}, "hud.go:10")
	c.AddLog("warn", "HUD token missing", map[string]interface{}{"market": "b"}, "hud.go:10")
	c.AddLog("error", "upsert failed", nil, "loader.go:20")
	c.Close()

	require.Len(t, pub.batches, 1)
	assert.Equal(t, "logs", pub.topics[0])

	counts := map[string]int{}
	for _, e := range pub.batches[0] {
		counts[e.Message] = e.Count
	}
	assert.Equal(t, 2, counts["HUD token missing"])
	assert.Equal(t, 1, counts["upsert failed"])
}

func TestCollectorFlushesOnThreshold(t *testing.T) {
	pub := &capturePublisher{}
	c := NewLogCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 2, Topic: "logs", Publisher: pub})

	c.AddLog("warn", "one", nil, "x.go:1")
	c.AddLog("warn", "two", nil, "x.go:2")
	c.AddLog("warn", "three", nil, "x.go:3")
	c.Close()

	total := 0
	for _, b := range pub.batches {
		total += len(b)
	}
	assert.Equal(t, 3, total)
	assert.GreaterOrEqual(t, len(pub.batches), 2)
}

func TestLoggerWarnFeedsCollector(t *testing.T) {
	pub := &capturePublisher{}
	l, err := New(&Config{Level: "error", Format: "json", Output: "stderr"})
	require.NoError(t, err)
	l.AddCollector(&CollectionConfig{TimeInterval: time.Hour, Topic: "logs", Publisher: pub})

	l.Warn("source skipped", String("source", "hud_fmr"))
	l.RemoveCollector()

	require.Len(t, pub.batches, 1)
	entry := pub.batches[0][0]
	assert.Equal(t, "warn", entry.Level)
	assert.Equal(t, "hud_fmr", entry.Fields["source"])
	assert.Contains(t, entry.Caller, "collector_test.go")
}
