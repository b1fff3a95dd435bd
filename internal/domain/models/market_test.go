package models

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarketConfigYears(t *testing.T) {
	m := MarketConfig{StartYear: 2023, EndYear: 2025}
	assert.Equal(t, []int{2023, 2024, 2025}, m.Years())

	m = MarketConfig{StartYear: 2025}
	assert.Equal(t, []int{2025}, m.Years())
}

func TestMarketConfigSplitFIPS(t *testing.T) {
	state, county := MarketConfig{GeoID: "49-035"}.SplitFIPS()
	assert.Equal(t, "49", state)
	assert.Equal(t, "035", county)

	state, county = MarketConfig{GeoID: "49"}.SplitFIPS()
	assert.Equal(t, "49", state)
	assert.Empty(t, county)
}

func TestFREDRequest(t *testing.T) {
	m, ok := FindMarket("king_county")
	require.True(t, ok)

	req, ok := m.FREDRequest()
	require.True(t, ok)
	assert.Equal(t, "LAUCN530330000000003A", req.SeriesID)
	assert.Equal(t, "unemp_rate", req.Metric)
	assert.Equal(t, "53-033", req.GeoID)

	_, ok = MarketConfig{Key: "x"}.FREDRequest()
	assert.False(t, ok)
}

func TestMarketsByKeys(t *testing.T) {
	got, err := MarketsByKeys([]string{"travis_county", " king_county "})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "travis_county", got[0].Key)

	_, err = MarketsByKeys([]string{"travis_county", "nowhere", "atlantis"})
	require.True(t, errors.Is(err, ErrUnknownMarket))
	assert.Contains(t, err.Error(), "nowhere, atlantis")
}

func TestSignalFilter(t *testing.T) {
	f := SignalFilter{}.Normalized()
	assert.Equal(t, DefaultQueryLimit, f.Limit)

	f = SignalFilter{Limit: 5000}.Normalized()
	assert.Equal(t, MaxQueryLimit, f.Limit)

	m, _ := FindMarket("salt_lake_county")
	f = SignalFilter{GeoLevel: "state"}.ApplyMarket(m)
	assert.Equal(t, "state", f.GeoLevel)
	assert.Equal(t, "49-035", f.GeoID)
}

func TestParseExportFormat(t *testing.T) {
	f, ok := ParseExportFormat("CSV")
	assert.True(t, ok)
	assert.Equal(t, FormatCSV, f)

	f, ok = ParseExportFormat("")
	assert.True(t, ok)
	assert.Equal(t, FormatJSON, f)

	_, ok = ParseExportFormat("xml")
	assert.False(t, ok)
}
