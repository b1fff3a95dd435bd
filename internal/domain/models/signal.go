package models

import (
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/NayellyZurita/CRE-Market-Signals/pkg/util"
)

// Source identifiers.
const (
	SourceHUD  = "hud_fmr"
	SourceACS  = "acs"
	SourceFRED = "fred"
)

// Geography levels.
const (
	GeoLevelCounty = "county"
	GeoLevelState  = "state"
)

// MarketSignal is one normalized metric observation for a geography.
// Construct it with NewMarketSignal; the zero value is not a valid record.
type MarketSignal struct {
	Source     string          `json:"source"`
	GeoLevel   string          `json:"geo_level"`
	GeoID      string          `json:"geo_id"`
	GeoName    string          `json:"geo_name"`
	ObservedAt time.Time       `json:"observed_at"`
	Metric     string          `json:"metric"`
	Value      float64         `json:"value"`
	Unit       string          `json:"unit"`
	RawPayload json.RawMessage `json:"raw_payload"`
}

// SignalInput carries unvalidated fields for NewMarketSignal.
// Value accepts any numeric scalar or numeric string.
type SignalInput struct {
	Source     string    `validate:"required"`
	GeoLevel   string    `validate:"required"`
	GeoID      string    `validate:"required"`
	GeoName    string    `validate:"required"`
	ObservedAt time.Time `validate:"required"`
	Metric     string    `validate:"required"`
	Value      interface{}
	Unit       string `validate:"required"`
	RawPayload interface{}
}

var signalValidator = validator.New()

// ObservedAtPrecision is the finest observed_at resolution every store keeps.
const ObservedAtPrecision = time.Microsecond

// NewMarketSignal trims and validates in and returns the canonical record.
func NewMarketSignal(in SignalInput) (MarketSignal, error) {
	in.Source = strings.TrimSpace(in.Source)
	in.GeoLevel = strings.TrimSpace(in.GeoLevel)
	in.GeoID = strings.TrimSpace(in.GeoID)
	in.GeoName = strings.TrimSpace(in.GeoName)
	in.Metric = strings.TrimSpace(in.Metric)
	in.Unit = strings.TrimSpace(in.Unit)

	if err := signalValidator.Struct(in); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			return MarketSignal{}, &ValidationError{Field: fieldName(verrs[0].Field()), Reason: "is required"}
		}
		return MarketSignal{}, &ValidationError{Reason: err.Error()}
	}

	value, ok := util.ParseFinite(in.Value, nil)
	if !ok {
		return MarketSignal{}, &ValidationError{Field: "value", Reason: "must be a finite number"}
	}

	raw, err := encodePayload(in.RawPayload)
	if err != nil {
		return MarketSignal{}, &ValidationError{Field: "raw_payload", Reason: err.Error()}
	}

	return MarketSignal{
		Source:     in.Source,
		GeoLevel:   in.GeoLevel,
		GeoID:      in.GeoID,
		GeoName:    in.GeoName,
		ObservedAt: in.ObservedAt.UTC().Truncate(ObservedAtPrecision),
		Metric:     in.Metric,
		Value:      value,
		Unit:       in.Unit,
		RawPayload: raw,
	}, nil
}

// Key returns the natural key of the record.
func (s MarketSignal) Key() NaturalKey {
	return NaturalKey{
		Source:     s.Source,
		GeoLevel:   s.GeoLevel,
		GeoID:      s.GeoID,
		ObservedAt: s.ObservedAt.UnixNano(),
		Metric:     s.Metric,
	}
}

// UnmarshalJSON decodes and re-validates a serialized record.
func (s *MarketSignal) UnmarshalJSON(data []byte) error {
	var wire struct {
		Source     string          `json:"source"`
		GeoLevel   string          `json:"geo_level"`
		GeoID      string          `json:"geo_id"`
		GeoName    string          `json:"geo_name"`
		ObservedAt time.Time       `json:"observed_at"`
		Metric     string          `json:"metric"`
		Value      json.Number     `json:"value"`
		Unit       string          `json:"unit"`
		RawPayload json.RawMessage `json:"raw_payload"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	sig, err := NewMarketSignal(SignalInput{
		Source:     wire.Source,
		GeoLevel:   wire.GeoLevel,
		GeoID:      wire.GeoID,
		GeoName:    wire.GeoName,
		ObservedAt: wire.ObservedAt,
		Metric:     wire.Metric,
		Value:      wire.Value,
		Unit:       wire.Unit,
		RawPayload: wire.RawPayload,
	})
	if err != nil {
		return err
	}
	*s = sig
	return nil
}

// NaturalKey identifies a record for replace-on-write.
type NaturalKey struct {
	Source     string
	GeoLevel   string
	GeoID      string
	ObservedAt int64
	Metric     string
}

func encodePayload(payload interface{}) (json.RawMessage, error) {
	switch p := payload.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		if len(p) == 0 || string(p) == "null" {
			return nil, nil
		}
		if !json.Valid(p) {
			return nil, errInvalidPayload
		}
		return append(json.RawMessage(nil), p...), nil
	default:
		b, err := json.Marshal(p)
		if err != nil {
			return nil, err
		}
		if string(b) == "null" {
			return nil, nil
		}
		return b, nil
	}
}

func fieldName(goName string) string {
	switch goName {
	case "GeoLevel":
		return "geo_level"
	case "GeoID":
		return "geo_id"
	case "GeoName":
		return "geo_name"
	case "ObservedAt":
		return "observed_at"
	default:
		return strings.ToLower(goName)
	}
}

// IsFinite reports whether v can be stored as a signal value.
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
