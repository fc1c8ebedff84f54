package main

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/crop-exposure-etl/internal/config"
)

func loaderNames(t *testing.T, cfg *config.Config) []string {
	t.Helper()
	loaders, closeLoaders := resultLoaders(cfg, clockwork.NewFakeClock(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(closeLoaders)

	names := make([]string, 0, len(loaders))
	for _, l := range loaders {
		names = append(names, l.Name())
	}
	return names
}

func TestResultLoaders_CSVOnly(t *testing.T) {
	cfg := config.New()
	cfg.OutputFile = filepath.Join(t.TempDir(), "exposure.csv")

	assert.Equal(t, []string{"csv"}, loaderNames(t, cfg))
}

func TestResultLoaders_CSVRunsAfterKafka(t *testing.T) {
	cfg := config.New()
	cfg.OutputFile = filepath.Join(t.TempDir(), "exposure.csv")
	cfg.KafkaBrokers = []string{"localhost:9092"}

	names := loaderNames(t, cfg)

	require.Len(t, names, 2)
	assert.Equal(t, []string{"kafka", "csv"}, names)
}
