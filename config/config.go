package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	AppName                       string `validate:"required"`
	Version                       string
	Port                          int `validate:"min=1,max=65535"`
	LogLevel                      string
	PrettyLogs                    bool
	HttpServerWriteTimeoutSeconds int
	HttpServerReadTimeoutSeconds  int
	HttpServerIdleTimeoutSeconds  int
	ReadHeaderTimeoutSeconds      int
	MaxHeaderBytes                int
	AllowOrigins                  []string
	AllowMethods                  []string
	StartupMaxAttempts            int `validate:"min=1"`

	// PostgreSQL (vendor master)
	DatabaseDriver                string `validate:"required"`
	DatabaseHost                  string
	DatabasePort                  string
	DatabaseUserName              string
	DatabasePassword              string
	DatabaseName                  string `validate:"required"`
	DatabaseSSLMode               string
	DatabaseMaxOpenConns          int
	DatabaseMaxIdleConns          int
	DatabaseConnMaxLifetime       time.Duration
	DatabaseMigrationFolderPath   string
	DatabaseMigrationVersion      uint
	DatabaseMigrationForce        int
	DatabaseMigrationAutoRollback bool

	// Redis (locks and merge sessions)
	RedisHost     string
	RedisPort     int
	RedisPassword string
	RedisDB       int

	// Graph database (merge lineage)
	GraphDBEnabled  bool
	GraphDBHost     string
	GraphDBPort     int
	GraphDBUser     string
	GraphDBPassword string

	// Kafka
	KafkaBrokers         []string
	KafkaConsumerEnabled bool
	KafkaInputTopic      string
	KafkaConsumerGroup   string
	KafkaOutputTopic     string
	KafkaBatchSize       int
	KafkaBatchTimeout    time.Duration
	KafkaRequiredAcks    int
	KafkaCompression     string

	// Tracing
	TracingEnabled  bool
	TracingEndpoint string
	TracingProtocol string `validate:"oneof=grpc http"`
	TracingInsecure bool

	// Processing
	OwnershipMatrixPath string
	SourceMappingPath   string
	MergeSessionTTL     time.Duration `validate:"required"`
	MergeLockTTL        time.Duration `validate:"required"`
	IngestLockTTL       time.Duration `validate:"required"`
	IngestLockWait      time.Duration
	IngestWorkerCount   int `validate:"min=1"`
}

var defaults = map[string]any{
	"APP_NAME":                          "fern-api",
	"VERSION":                           "dev",
	"PORT":                              3004,
	"LOG_LEVEL":                         "info",
	"PRETTY_LOGS":                       false,
	"HTTP_SERVER_WRITE_TIMEOUT_SECONDS": 30,
	"HTTP_SERVER_READ_TIMEOUT_SECONDS":  10,
	"HTTP_SERVER_IDLE_TIMEOUT_SECONDS":  60,
	"HTTP_SERVER_READ_HEADER_TIMEOUT_SECONDS": 10,
	"HTTP_SERVER_MAX_HEADER_BYTES":            64000,
	"HTTP_SERVER_ALLOW_ORIGINS":               "*",
	"HTTP_SERVER_ALLOW_METHODS":               "GET,POST,PUT,DELETE",
	"STARTUP_MAX_ATTEMPTS":                    5,

	"DB_DRIVER":                  "postgres",
	"DB_HOST":                    "localhost",
	"DB_PORT":                    "5432",
	"DB_NAME":                    "fern",
	"DB_SSL_MODE":                "disable",
	"DB_MAX_OPEN_CONNS":          25,
	"DB_MAX_IDLE_CONNS":          10,
	"DB_CONN_MAX_LIFETIME":       "5m",
	"DB_MIGRATION_FOLDER_PATH":   "db/pg",
	"DB_MIGRATION_VERSION":       0,
	"DB_MIGRATION_FORCE":         0,
	"DB_MIGRATION_AUTO_ROLLBACK": true,

	"REDIS_HOST": "localhost",
	"REDIS_PORT": 6379,
	"REDIS_DB":   0,

	"GRAPH_DB_ENABLED": true,
	"GRAPH_DB_HOST":    "localhost",
	"GRAPH_DB_PORT":    7687,

	"KAFKA_BROKERS":          "localhost:9092",
	"KAFKA_CONSUMER_ENABLED": true,
	"KAFKA_INPUT_TOPIC":      "vendor-source-records",
	"KAFKA_CONSUMER_GROUP":   "fern-consumer",
	"KAFKA_OUTPUT_TOPIC":     "vendor-events",
	"KAFKA_BATCH_SIZE":       100,
	"KAFKA_BATCH_TIMEOUT":    "100ms",
	"KAFKA_REQUIRED_ACKS":    1,
	"KAFKA_COMPRESSION":      "snappy",

	"TRACING_ENABLED":  false,
	"TRACING_ENDPOINT": "localhost:4317",
	"TRACING_PROTOCOL": "grpc",
	"TRACING_INSECURE": true,

	"OWNERSHIP_MATRIX_PATH": "",
	"SOURCE_MAPPING_PATH":   "",
	"MERGE_SESSION_TTL":     "24h",
	"MERGE_LOCK_TTL":        "2m",
	"INGEST_LOCK_TTL":       "30s",
	"INGEST_LOCK_WAIT":      "5s",
	"INGEST_WORKER_COUNT":   8,
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads .env files, then the environment, over the defaults
func Load() (*Config, error) {
	loadEnvFiles()

	v := viper.New()
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	cfg := &Config{
		AppName:                       v.GetString("APP_NAME"),
		Version:                       v.GetString("VERSION"),
		Port:                          v.GetInt("PORT"),
		LogLevel:                      v.GetString("LOG_LEVEL"),
		PrettyLogs:                    v.GetBool("PRETTY_LOGS"),
		HttpServerWriteTimeoutSeconds: v.GetInt("HTTP_SERVER_WRITE_TIMEOUT_SECONDS"),
		HttpServerReadTimeoutSeconds:  v.GetInt("HTTP_SERVER_READ_TIMEOUT_SECONDS"),
		HttpServerIdleTimeoutSeconds:  v.GetInt("HTTP_SERVER_IDLE_TIMEOUT_SECONDS"),
		ReadHeaderTimeoutSeconds:      v.GetInt("HTTP_SERVER_READ_HEADER_TIMEOUT_SECONDS"),
		MaxHeaderBytes:                v.GetInt("HTTP_SERVER_MAX_HEADER_BYTES"),
		AllowOrigins:                  splitList(v.GetString("HTTP_SERVER_ALLOW_ORIGINS")),
		AllowMethods:                  splitList(v.GetString("HTTP_SERVER_ALLOW_METHODS")),
		StartupMaxAttempts:            v.GetInt("STARTUP_MAX_ATTEMPTS"),

		DatabaseDriver:                v.GetString("DB_DRIVER"),
		DatabaseHost:                  v.GetString("DB_HOST"),
		DatabasePort:                  v.GetString("DB_PORT"),
		DatabaseUserName:              v.GetString("DB_USER_NAME"),
		DatabasePassword:              v.GetString("DB_PASSWORD"),
		DatabaseName:                  v.GetString("DB_NAME"),
		DatabaseSSLMode:               v.GetString("DB_SSL_MODE"),
		DatabaseMaxOpenConns:          v.GetInt("DB_MAX_OPEN_CONNS"),
		DatabaseMaxIdleConns:          v.GetInt("DB_MAX_IDLE_CONNS"),
		DatabaseConnMaxLifetime:       v.GetDuration("DB_CONN_MAX_LIFETIME"),
		DatabaseMigrationFolderPath:   v.GetString("DB_MIGRATION_FOLDER_PATH"),
		DatabaseMigrationVersion:      v.GetUint("DB_MIGRATION_VERSION"),
		DatabaseMigrationForce:        v.GetInt("DB_MIGRATION_FORCE"),
		DatabaseMigrationAutoRollback: v.GetBool("DB_MIGRATION_AUTO_ROLLBACK"),

		RedisHost:     v.GetString("REDIS_HOST"),
		RedisPort:     v.GetInt("REDIS_PORT"),
		RedisPassword: v.GetString("REDIS_PASSWORD"),
		RedisDB:       v.GetInt("REDIS_DB"),

		GraphDBEnabled:  v.GetBool("GRAPH_DB_ENABLED"),
		GraphDBHost:     v.GetString("GRAPH_DB_HOST"),
		GraphDBPort:     v.GetInt("GRAPH_DB_PORT"),
		GraphDBUser:     v.GetString("GRAPH_DB_USER"),
		GraphDBPassword: v.GetString("GRAPH_DB_PASSWORD"),

		KafkaBrokers:         splitList(v.GetString("KAFKA_BROKERS")),
		KafkaConsumerEnabled: v.GetBool("KAFKA_CONSUMER_ENABLED"),
		KafkaInputTopic:      v.GetString("KAFKA_INPUT_TOPIC"),
		KafkaConsumerGroup:   v.GetString("KAFKA_CONSUMER_GROUP"),
		KafkaOutputTopic:     v.GetString("KAFKA_OUTPUT_TOPIC"),
		KafkaBatchSize:       v.GetInt("KAFKA_BATCH_SIZE"),
		KafkaBatchTimeout:    v.GetDuration("KAFKA_BATCH_TIMEOUT"),
		KafkaRequiredAcks:    v.GetInt("KAFKA_REQUIRED_ACKS"),
		KafkaCompression:     v.GetString("KAFKA_COMPRESSION"),

		TracingEnabled:  v.GetBool("TRACING_ENABLED"),
		TracingEndpoint: v.GetString("TRACING_ENDPOINT"),
		TracingProtocol: v.GetString("TRACING_PROTOCOL"),
		TracingInsecure: v.GetBool("TRACING_INSECURE"),

		OwnershipMatrixPath: v.GetString("OWNERSHIP_MATRIX_PATH"),
		SourceMappingPath:   v.GetString("SOURCE_MAPPING_PATH"),
		MergeSessionTTL:     v.GetDuration("MERGE_SESSION_TTL"),
		MergeLockTTL:        v.GetDuration("MERGE_LOCK_TTL"),
		IngestLockTTL:       v.GetDuration("INGEST_LOCK_TTL"),
		IngestLockWait:      v.GetDuration("INGEST_LOCK_WAIT"),
		IngestWorkerCount:   v.GetInt("INGEST_WORKER_COUNT"),
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DatabaseDSN builds the lib/pq connection string
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DatabaseHost, c.DatabasePort, c.DatabaseUserName, c.DatabasePassword, c.DatabaseName, c.DatabaseSSLMode)
}

// .env.local overrides .env; neither has to exist
func loadEnvFiles() {
	for _, envFile := range []string{".env.local", ".env"} {
		_ = godotenv.Load(envFile)
	}
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
