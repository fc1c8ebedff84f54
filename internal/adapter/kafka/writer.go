package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/crop-exposure-etl/internal/config"
	"github.com/couchcryptid/crop-exposure-etl/internal/domain"
)

// publishBatchSize bounds the messages sent per WriteMessages call.
const publishBatchSize = 500

// ResultMessage is the JSON payload published for one result row.
type ResultMessage struct {
	Metric     string             `json:"metric"`
	Year       int                `json:"year"`
	Country    string             `json:"country"`
	CountryISO string             `json:"country_iso"`
	Values     map[string]float64 `json:"values"`
}

// Writer publishes result rows to a Kafka topic.
// It implements pipeline.ResultLoader.
type Writer struct {
	writer *kafkago.Writer
	metric string
	clock  clockwork.Clock
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured result topic.
func NewWriter(cfg *config.Config, clock clockwork.Clock, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, metric: cfg.Metric, clock: clock, logger: logger}
}

// Name identifies the sink in logs and metrics.
func (w *Writer) Name() string { return "kafka" }

// Load serializes every row and publishes them in batches.
func (w *Writer) Load(ctx context.Context, columns []string, rows []domain.ResultRow) error {
	if len(rows) == 0 {
		return nil
	}
	processedAt := w.clock.Now().UTC()
	msgs := make([]kafkago.Message, 0, min(len(rows), publishBatchSize))
	for i := range rows {
		msg, err := serializeToMessage(w.metric, columns, rows[i], processedAt)
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
		if len(msgs) == publishBatchSize || i == len(rows)-1 {
			if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
				return fmt.Errorf("publish results to %s: %w", w.writer.Topic, err)
			}
			msgs = msgs[:0]
		}
	}
	w.logger.Info("results published", "topic", w.writer.Topic, "rows", len(rows))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// messageKey keys results by metric, year and country so reruns compact onto
// the same keys.
func messageKey(metric string, row domain.ResultRow) []byte {
	return []byte(metric + "|" + strconv.Itoa(row.Year) + "|" + row.ISO3)
}

// serializeToMessage marshals a ResultRow into a Kafka message.
func serializeToMessage(metric string, columns []string, row domain.ResultRow, processedAt time.Time) (kafkago.Message, error) {
	if len(row.Values) != len(columns) {
		return kafkago.Message{}, fmt.Errorf("serialize result %d/%s: %d values for %d columns",
			row.Year, row.ISO3, len(row.Values), len(columns))
	}
	values := make(map[string]float64, len(columns))
	for i, c := range columns {
		values[c] = row.Values[i]
	}
	data, err := json.Marshal(ResultMessage{
		Metric:     metric,
		Year:       row.Year,
		Country:    row.Country,
		CountryISO: row.ISO3,
		Values:     values,
	})
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize result %d/%s: %w", row.Year, row.ISO3, err)
	}
	return kafkago.Message{
		Key:   messageKey(metric, row),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "metric", Value: []byte(metric)},
			{Key: "processed_at", Value: []byte(processedAt.Format(time.RFC3339))},
		},
	}, nil
}
