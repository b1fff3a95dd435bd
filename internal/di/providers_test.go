package di

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NayellyZurita/CRE-Market-Signals/pkg/cache"
	"github.com/NayellyZurita/CRE-Market-Signals/pkg/config"
)

func TestQueryCacheRequiresRedis(t *testing.T) {
	cfg := &config.Config{}
	rc, cleanup, err := ProvideRedisCache(cfg)
	require.NoError(t, err)
	defer cleanup()
	assert.Nil(t, rc)

	assert.Nil(t, ProvideQueryCache(rc), "JSON results are not cached in process memory")

	c, closeCache := ProvideCache(rc)
	defer closeCache()
	assert.IsType(t, &cache.MemoryCache{}, c)
}
