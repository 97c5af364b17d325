//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/dwd-weather-etl/internal/adapter/kafka"
	"github.com/couchcryptid/dwd-weather-etl/internal/config"
	"github.com/couchcryptid/dwd-weather-etl/internal/domain"
	"github.com/couchcryptid/dwd-weather-etl/internal/merge"
	"github.com/couchcryptid/dwd-weather-etl/internal/observability"
	"github.com/couchcryptid/dwd-weather-etl/internal/pipeline"
	"github.com/couchcryptid/dwd-weather-etl/internal/registry"
	"github.com/couchcryptid/dwd-weather-etl/internal/units"
)

const testSinkTopic = "test-weather-records"

// currentObsFixture is a trimmed current-observations file for WMO station
// 10315 with two measurement rows.
const currentObsFixture = "surface observations;Parameter description;" +
	"dry_bulb_temperature_at_2_meter_above_ground;relative_humidity;cloud_cover_total\n" +
	"10315______;_____;;;\n" +
	"Bodenbeobachtung;Parameterbeschreibung;;;\n" +
	"12.04.23;09:00;11,3;66;88\n" +
	"12.04.23;10:00;12,1;---;75\n"

// sinkMessage holds a deserialized message read from the sink topic.
type sinkMessage struct {
	Record  map[string]any
	Key     string
	Headers map[string]string
}

// readSink reads a single message from the sink consumer and deserializes it.
func readSink(ctx context.Context, t *testing.T, consumer *kafkago.Reader) sinkMessage {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from sink topic")

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	var record map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &record), "unmarshal sink message")

	return sinkMessage{Record: record, Key: string(msg.Key), Headers: headers}
}

// TestKafkaWriter verifies the adapter layer: kafka.Writer round-trips a
// record through Kafka with key and headers intact.
func TestKafkaWriter(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSinkTopic)

	cfg := &config.Config{
		KafkaBrokers:   []string{broker},
		KafkaSinkTopic: testSinkTopic,
	}

	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	record := domain.Record{
		DWDStationID:    "01766",
		WMOStationID:    "10315",
		ObservationType: domain.Current,
		Timestamp:       time.Date(2023, 4, 12, 9, 0, 0, 0, time.UTC),
		Parameters: map[domain.Parameter]*domain.Value{
			domain.Temperature: domain.NewValue(11.3, units.Celsius),
		},
		ParsedAt: time.Now().UTC(),
	}
	require.NoError(t, writer.LoadBatch(ctx, []domain.Record{record}))

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testSinkTopic,
		GroupID:     fmt.Sprintf("test-consumer-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	sm := readSink(ctx, t, consumer)
	assert.Equal(t, "01766", sm.Key)
	assert.Equal(t, "current", sm.Headers["observation_type"])
	_, err := time.Parse(time.RFC3339, sm.Headers["parsed_at"])
	assert.NoError(t, err, "parsed_at should be valid RFC3339")
	assert.InDelta(t, 284.45, sm.Record["temperature"], 1e-9)
}

// TestPipelineEndToEnd drops a product file into the spool directory and
// verifies the pipeline parses it and publishes merged records.
func TestPipelineEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSinkTopic)

	spoolDir := t.TempDir()
	require.NoError(t, os.WriteFile(
		filepath.Join(spoolDir, "10315-BEOB.csv"), []byte(currentObsFixture), 0o644))

	cfg := &config.Config{
		KafkaBrokers:   []string{broker},
		KafkaSinkTopic: testSinkTopic,
	}

	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	metrics := observability.NewMetricsForTesting()
	p := pipeline.New(registry.New(), writer, discardLogger(), metrics,
		spoolDir, 100*time.Millisecond, merge.KeepFirst)

	pipelineCtx, pipelineCancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(pipelineCtx) }()

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testSinkTopic,
		GroupID:     fmt.Sprintf("test-sink-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	received := make([]sinkMessage, 0, 2)
	for len(received) < 2 {
		received = append(received, readSink(ctx, t, consumer))
	}

	pipelineCancel()
	require.NoError(t, <-errCh)

	first := received[0]
	assert.Equal(t, "current", first.Record["observation_type"])
	assert.Equal(t, "10315", first.Record["wmo_station_id"])
	assert.Equal(t, "2023-04-12T09:00:00Z", first.Record["timestamp"])
	assert.InDelta(t, 284.45, first.Record["temperature"], 1e-9)
	assert.InDelta(t, 66, first.Record["relative_humidity"], 1e-9)
	assert.InDelta(t, 88, first.Record["cloud_cover"], 1e-9)

	second := received[1]
	assert.Equal(t, "2023-04-12T10:00:00Z", second.Record["timestamp"])
	assert.InDelta(t, 285.25, second.Record["temperature"], 1e-9)
	humidity, present := second.Record["relative_humidity"]
	assert.True(t, present, "explicitly missing parameter should be serialized")
	assert.Nil(t, humidity)

	// The processed file must have moved out of the spool root.
	_, err := os.Stat(filepath.Join(spoolDir, "10315-BEOB.csv"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(spoolDir, "done", "10315-BEOB.csv"))
	assert.NoError(t, err)
}

// TestPipelineUnrecognizedFile verifies that a file no decoder claims lands
// in failed/ and does not stall the pipeline.
func TestPipelineUnrecognizedFile(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSinkTopic)

	spoolDir := t.TempDir()
	require.NoError(t, os.WriteFile(
		filepath.Join(spoolDir, "notes.txt"), []byte("not a product file"), 0o644))

	cfg := &config.Config{
		KafkaBrokers:   []string{broker},
		KafkaSinkTopic: testSinkTopic,
	}
	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	metrics := observability.NewMetricsForTesting()
	p := pipeline.New(registry.New(), writer, discardLogger(), metrics,
		spoolDir, 100*time.Millisecond, merge.KeepFirst)

	pipelineCtx, pipelineCancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(pipelineCtx) }()

	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(spoolDir, "failed", "notes.txt"))
		return err == nil
	}, 30*time.Second, 200*time.Millisecond)

	pipelineCancel()
	require.NoError(t, <-errCh)
}
