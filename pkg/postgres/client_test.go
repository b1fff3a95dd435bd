package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDSN(t *testing.T) {
	assert.Equal(t, "postgres://u:p@db:5432/signals?sslmode=disable",
		DSN(ClientConfig{Host: "db", Database: "signals", User: "u", Password: "p"}))

	assert.Equal(t, "postgres://x", DSN(ClientConfig{DSN: "postgres://x", Host: "ignored"}))

	assert.Equal(t, "postgres://u:p@db:6543/signals?sslmode=require",
		DSN(ClientConfig{Host: "db", Port: 6543, Database: "signals", User: "u", Password: "p", SSLMode: "require"}))
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	assert.NoError(t, err)
	assert.GreaterOrEqual(t, len(entries), 2)

	data, err := migrationsFS.ReadFile("migrations/001_market_signals.sql")
	assert.NoError(t, err)
	assert.Contains(t, string(data), "PRIMARY KEY (source, geo_level, geo_id, observed_at, metric)")
}
