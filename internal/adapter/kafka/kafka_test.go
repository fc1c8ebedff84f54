package kafka

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/crop-exposure-etl/internal/config"
	"github.com/couchcryptid/crop-exposure-etl/internal/domain"
)

func TestSerializeToMessage(t *testing.T) {
	now := time.Date(2024, 4, 26, 15, 10, 0, 0, time.UTC)
	row := domain.ResultRow{Year: 2001, Country: "Aland", ISO3: "ALA", Values: []float64{4.5, 1}}

	msg, err := serializeToMessage("cdhw", []string{"CDHW29_days", "CDHW30_days"}, row, now)
	require.NoError(t, err)

	assert.Equal(t, []byte("cdhw|2001|ALA"), msg.Key)
	assert.JSONEq(t, `{
		"metric": "cdhw",
		"year": 2001,
		"country": "Aland",
		"country_iso": "ALA",
		"values": {"CDHW29_days": 4.5, "CDHW30_days": 1}
	}`, string(msg.Value))
	assert.Len(t, msg.Headers, 2)
	assert.Equal(t, "metric", msg.Headers[0].Key)
	assert.Equal(t, []byte("cdhw"), msg.Headers[0].Value)
	assert.Equal(t, "processed_at", msg.Headers[1].Key)
	assert.Equal(t, []byte(now.Format(time.RFC3339)), msg.Headers[1].Value)
}

func TestSerializeToMessage_ColumnMismatch(t *testing.T) {
	row := domain.ResultRow{Year: 2001, ISO3: "ALA", Values: []float64{1}}

	_, err := serializeToMessage("cdhw", []string{"CDHW29_days", "CDHW30_days"}, row, time.Time{})

	assert.Error(t, err)
}

func TestSerializeToMessage_NaNIsRejected(t *testing.T) {
	row := domain.ResultRow{Year: 2001, ISO3: "ALA", Values: []float64{math.NaN()}}

	_, err := serializeToMessage("mean_temp", []string{"mean_temp"}, row, time.Time{})

	assert.Error(t, err, "JSON cannot carry NaN; the table is finalised before publishing")
}

func TestWriter_LoadEmptyIsNoop(t *testing.T) {
	cfg := config.New()
	cfg.KafkaBrokers = []string{"localhost:1"}
	w := NewWriter(cfg, clockwork.NewFakeClock(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	defer w.Close()

	assert.NoError(t, w.Load(context.Background(), []string{"mean_temp"}, nil))
	assert.Equal(t, "kafka", w.Name())
}

func TestResultMessage_RoundTripsValues(t *testing.T) {
	row := domain.ResultRow{Year: 1999, Country: "Borland", ISO3: "BOR", Values: []float64{812.25}}

	msg, err := serializeToMessage("precipitation", []string{"precipitation_total"}, row, time.Unix(0, 0))
	require.NoError(t, err)

	var got ResultMessage
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, 812.25, got.Values["precipitation_total"])
	assert.Equal(t, "BOR", got.CountryISO)
}
