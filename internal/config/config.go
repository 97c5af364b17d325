package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/couchcryptid/dwd-weather-etl/internal/merge"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	SpoolDir     string
	PollInterval time.Duration

	KafkaBrokers   []string
	KafkaSinkTopic string

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// StationListPath points at a local snapshot of the DWD station list,
	// used to translate between DWD and WMO station ids. Optional; without
	// it records keep whichever id their source file carries.
	StationListPath string

	MergePolicy merge.Policy
}

// Load reads configuration from environment variables, applying defaults
// where unset.
func Load() (*Config, error) {
	pollInterval, err := envDuration("POLL_INTERVAL", 10*time.Second)
	if err != nil {
		return nil, err
	}
	shutdownTimeout, err := envDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	policy, err := parseMergePolicy(envOrDefault("MERGE_POLICY", string(merge.KeepFirst)))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		SpoolDir:        envOrDefault("SPOOL_DIR", "data/incoming"),
		PollInterval:    pollInterval,
		KafkaBrokers:    parseBrokers(envOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSinkTopic:  envOrDefault("KAFKA_SINK_TOPIC", "dwd-weather-records"),
		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
		StationListPath: os.Getenv("STATION_LIST_PATH"),
		MergePolicy:     policy,
	}

	if cfg.SpoolDir == "" {
		return nil, errors.New("SPOOL_DIR is required")
	}
	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	if cfg.KafkaSinkTopic == "" {
		return nil, errors.New("KAFKA_SINK_TOPIC is required")
	}
	return cfg, nil
}

func parseMergePolicy(s string) (merge.Policy, error) {
	switch p := merge.Policy(s); p {
	case merge.KeepFirst, merge.KeepLast, merge.DropKey:
		return p, nil
	default:
		return "", fmt.Errorf("invalid MERGE_POLICY %q", s)
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s %q", key, s)
	}
	return d, nil
}

func parseBrokers(s string) []string {
	var brokers []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
