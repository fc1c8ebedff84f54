//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/couchcryptid/crop-exposure-etl/internal/adapter/csvfile"
	"github.com/couchcryptid/crop-exposure-etl/internal/adapter/kafka"
	"github.com/couchcryptid/crop-exposure-etl/internal/config"
	"github.com/couchcryptid/crop-exposure-etl/internal/domain"
	"github.com/couchcryptid/crop-exposure-etl/internal/observability"
	"github.com/couchcryptid/crop-exposure-etl/internal/pipeline"
)

const testResultTopic = "test-exposure-results"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka runs a single-node broker for the duration of the test.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("exposure-test"))
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err, "start kafka container")

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

// createTopic creates a single-partition topic through the cluster controller.
func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	ctrl, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer ctrl.Close()

	require.NoError(t, ctrl.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

type staticSource struct{ files []string }

func (s staticSource) Discover(context.Context) ([]string, error) { return s.files, nil }

func (s staticSource) Load(_ context.Context, path string) (domain.Field3D, error) {
	return domain.Field3D{Name: filepath.Base(path)}, nil
}

type staticProcessor struct{}

func (staticProcessor) Columns() []string { return []string{"CDHW29_days", "CDHW30_days"} }

func (staticProcessor) Process(_ context.Context, f domain.Field3D) ([]domain.ResultRow, error) {
	year := 2001
	if f.Name == "tasmax_2002.nc" {
		year = 2002
	}
	return []domain.ResultRow{
		{Year: year, Country: "Borland", ISO3: "BOR", Values: []float64{3, 1}},
		{Year: year, Country: "Aland", ISO3: "ALA", Values: []float64{4.5, 2}},
	}, nil
}

// TestPipelinePublishesResults runs the pipeline with both sinks and reads the
// published rows back from the topic.
func TestPipelinePublishesResults(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testResultTopic)

	cfg := config.New()
	cfg.KafkaBrokers = []string{broker}
	cfg.KafkaTopic = testResultTopic
	cfg.OutputFile = filepath.Join(t.TempDir(), "exposure.csv")

	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	writer := kafka.NewWriter(cfg, clock, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	p := pipeline.New(
		staticSource{files: []string{"tasmax_2001.nc", "tasmax_2002.nc"}},
		staticProcessor{},
		discardLogger(),
		observability.NewMetricsForTesting(),
		clock,
		writer,
		csvfile.NewResultWriter(cfg.OutputFile, discardLogger()),
	)
	require.NoError(t, p.Run(ctx))

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:   []string{broker},
		Topic:     testResultTopic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  10e6,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	var keys []string
	var first kafka.ResultMessage
	for i := 0; i < 4; i++ {
		readCtx, readCancel := context.WithTimeout(ctx, 30*time.Second)
		msg, err := consumer.ReadMessage(readCtx)
		readCancel()
		require.NoError(t, err, "read result %d", i)

		keys = append(keys, string(msg.Key))
		if i == 0 {
			require.NoError(t, json.Unmarshal(msg.Value, &first))
			headers := make(map[string]string, len(msg.Headers))
			for _, h := range msg.Headers {
				headers[h.Key] = string(h.Value)
			}
			assert.Equal(t, "cdhw", headers["metric"])
			assert.Equal(t, "2026-03-01T12:00:00Z", headers["processed_at"])
		}
	}

	assert.Equal(t, []string{"cdhw|2001|ALA", "cdhw|2001|BOR", "cdhw|2002|ALA", "cdhw|2002|BOR"}, keys)
	assert.Equal(t, kafka.ResultMessage{
		Metric:     "cdhw",
		Year:       2001,
		Country:    "Aland",
		CountryISO: "ALA",
		Values:     map[string]float64{"CDHW29_days": 4.5, "CDHW30_days": 2},
	}, first)

	out, err := os.ReadFile(cfg.OutputFile)
	require.NoError(t, err)
	assert.Equal(t, "year,CDHW29_days,CDHW30_days,country,country_iso\n"+
		"2001,4.5,2,Aland,ALA\n"+
		"2001,3,1,Borland,BOR\n"+
		"2002,4.5,2,Aland,ALA\n"+
		"2002,3,1,Borland,BOR\n", string(out))
}
