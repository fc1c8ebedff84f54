// Package config loads run settings by layering defaults, an optional YAML
// file and EXPOSURE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/couchcryptid/crop-exposure-etl/internal/domain"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

const (
	envPrefix  = "EXPOSURE_"
	envFileKey = "EXPOSURE_CONFIG"
)

// listKeys are split on commas when read from the environment.
var listKeys = []string{"heat_thresholds_c", "exclude_iso_codes", "kafka_brokers"}

// Config holds all run settings.
type Config struct {
	Metric string `koanf:"metric"`

	ClimateFilesPattern string   `koanf:"climate_files_pattern"`
	DroughtFile         string   `koanf:"drought_file"`
	DroughtVariable     string   `koanf:"drought_variable"`
	HarvestedAreaFile   string   `koanf:"harvested_area_file"`
	GrowingSeasonFile   string   `koanf:"growing_season_file"`
	CountriesFile       string   `koanf:"countries_file"`
	CountryNameColumn   string   `koanf:"country_name_column"`
	ExcludeISOCodes     []string `koanf:"exclude_iso_codes"`
	OutputFile          string   `koanf:"output_file"`

	HeatThresholdsC  []float64 `koanf:"heat_thresholds_c"`
	DroughtThreshold float64   `koanf:"drought_threshold"`
	TemperatureUnits string    `koanf:"temperature_units"`
	AreaResampling   string    `koanf:"area_resampling"`

	LogLevel  string `koanf:"log_level"`
	LogFormat string `koanf:"log_format"`

	// HTTPAddr enables the health and metrics server when set.
	HTTPAddr string `koanf:"http_addr"`

	// KafkaBrokers enables result publishing when set.
	KafkaBrokers []string `koanf:"kafka_brokers"`
	KafkaTopic   string   `koanf:"kafka_topic"`

	ShutdownTimeout time.Duration `koanf:"-"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		Metric:              domain.MetricCDHW,
		ClimateFilesPattern: "data/climate/*.nc",
		DroughtFile:         "data/spei/spei01.nc",
		DroughtVariable:     "spei",
		HarvestedAreaFile:   "data/maize_HarvestedAreaHectares.tif",
		GrowingSeasonFile:   "data/maize_growing_season.csv",
		CountriesFile:       "data/ne_10m_admin_0_countries.shp",
		CountryNameColumn:   "ADMIN",
		OutputFile:          "output/exposure.csv",
		HeatThresholdsC:     []float64{29, 30},
		DroughtThreshold:    -1,
		TemperatureUnits:    "kelvin",
		AreaResampling:      string(domain.ResampleNearest),
		LogLevel:            "info",
		LogFormat:           "json",
		KafkaTopic:          "crop-exposure-results",
	}
}

// Load builds a Config by layering, from low to high precedence:
//  1. defaults (New)
//  2. the YAML file named by EXPOSURE_CONFIG, if set
//  3. EXPOSURE_* environment variables, e.g. EXPOSURE_OUTPUT_FILE
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	k := koanf.New(".")

	if path := os.Getenv(envFileKey); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	envProvider := env.ProviderWithValue(envPrefix, ".", func(key, value string) (string, interface{}) {
		key = strings.TrimPrefix(strings.ToLower(key), strings.ToLower(envPrefix))
		if key == "config" {
			return "", nil
		}
		if slices.Contains(listKeys, key) {
			return key, splitList(value)
		}
		return key, value
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load config env: %w", err)
	}

	cfg := *New()
	// The decoder writes into existing slices element-wise, so overridden
	// lists must start empty.
	if k.Exists("heat_thresholds_c") {
		cfg.HeatThresholdsC = nil
	}
	if k.Exists("kafka_brokers") {
		cfg.KafkaBrokers = nil
	}
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if !k.Exists("exclude_iso_codes") {
		cfg.ExcludeISOCodes = DefaultExcludeISOCodes(cfg.Metric)
	}
	cfg.ShutdownTimeout = shutdownTimeout

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DefaultExcludeISOCodes returns the ISO_A3 codes dropped from the country
// registry when exclude_iso_codes is unset. The mean temperature and
// precipitation runs skip polygons without an assigned code; cdhw keeps all.
func DefaultExcludeISOCodes(metric string) []string {
	switch metric {
	case domain.MetricMeanTemp, domain.MetricPrecipitation:
		return []string{"-99"}
	default:
		return nil
	}
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks required settings and enumerated values.
func (c *Config) Validate() error {
	switch c.Metric {
	case domain.MetricCDHW, domain.MetricMeanTemp, domain.MetricPrecipitation:
	default:
		return fmt.Errorf("%w: unknown metric %q", ErrInvalidConfig, c.Metric)
	}

	required := map[string]string{
		"climate_files_pattern": c.ClimateFilesPattern,
		"harvested_area_file":   c.HarvestedAreaFile,
		"growing_season_file":   c.GrowingSeasonFile,
		"countries_file":        c.CountriesFile,
		"country_name_column":   c.CountryNameColumn,
		"output_file":           c.OutputFile,
	}
	if c.Metric == domain.MetricCDHW {
		required["drought_file"] = c.DroughtFile
		required["drought_variable"] = c.DroughtVariable
	}
	for _, key := range slices.Sorted(maps.Keys(required)) {
		if strings.TrimSpace(required[key]) == "" {
			return fmt.Errorf("%w: %s is required", ErrInvalidConfig, key)
		}
	}

	if c.Metric == domain.MetricCDHW && len(c.HeatThresholdsC) == 0 {
		return fmt.Errorf("%w: heat_thresholds_c must not be empty for metric %s", ErrInvalidConfig, c.Metric)
	}
	switch c.TemperatureUnits {
	case "kelvin", "celsius":
	default:
		return fmt.Errorf("%w: temperature_units must be kelvin or celsius, got %q", ErrInvalidConfig, c.TemperatureUnits)
	}
	if _, err := domain.ParseResampling(c.AreaResampling); err != nil {
		return fmt.Errorf("%w: area_resampling: %v", ErrInvalidConfig, err)
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		return fmt.Errorf("%w: kafka_topic is required when kafka_brokers is set", ErrInvalidConfig)
	}
	return nil
}

// Kelvin reports whether temperature inputs are in Kelvin.
func (c *Config) Kelvin() bool { return c.TemperatureUnits == "kelvin" }

// MetricSettings returns the metric parameters carried by the config.
func (c *Config) MetricSettings() domain.MetricSettings {
	return domain.MetricSettings{
		HeatThresholdsC:  c.HeatThresholdsC,
		DroughtThreshold: c.DroughtThreshold,
		Kelvin:           c.Kelvin(),
	}
}
