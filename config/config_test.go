package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "fern-api", cfg.AppName)
	assert.Equal(t, 3004, cfg.Port)
	assert.Equal(t, 24*time.Hour, cfg.MergeSessionTTL)
	assert.Equal(t, 2*time.Minute, cfg.MergeLockTTL)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, []string{"GET", "POST", "PUT", "DELETE"}, cfg.AllowMethods)
	assert.Equal(t, "db/pg", cfg.DatabaseMigrationFolderPath)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092")
	t.Setenv("MERGE_SESSION_TTL", "90m")
	t.Setenv("INGEST_WORKER_COUNT", "16")
	t.Setenv("DB_USER_NAME", "fern")
	t.Setenv("DB_PASSWORD", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 90*time.Minute, cfg.MergeSessionTTL)
	assert.Equal(t, 16, cfg.IngestWorkerCount)
	assert.Equal(t, "host=localhost port=5432 user=fern password=secret dbname=fern sslmode=disable", cfg.DatabaseDSN())
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Setenv("INGEST_WORKER_COUNT", "0")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("INGEST_WORKER_COUNT", "4")
	t.Setenv("TRACING_PROTOCOL", "udp")
	_, err = Load()
	assert.Error(t, err)
}
