package kafka

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	HeaderEventType     = "event_type"
	HeaderSchemaVersion = "schema_version"
	HeaderSourceSystem  = "source_system"
	HeaderTraceParent   = "traceparent"
	HeaderRequestID     = "request_id"
)

// Message is a consumed Kafka message with its headers flattened
type Message struct {
	Key       string
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
}

// SourceRecord is the payload of the ingestion topic: one raw row from a source system
type SourceRecord struct {
	SourceSystem string         `json:"source_system"`
	Record       map[string]any `json:"record"`
}

// ParseSourceRecord decodes an ingestion message. The source_system header wins over the body.
func (m *Message) ParseSourceRecord() (SourceRecord, error) {
	var rec SourceRecord
	if err := json.Unmarshal(m.Value, &rec); err != nil {
		return SourceRecord{}, fmt.Errorf("invalid source record message: %w", err)
	}
	if source := m.Headers[HeaderSourceSystem]; source != "" {
		rec.SourceSystem = source
	}
	if rec.SourceSystem == "" {
		return SourceRecord{}, fmt.Errorf("source record message has no source_system")
	}
	if rec.Record == nil {
		return SourceRecord{}, fmt.Errorf("source record message has no record")
	}
	return rec, nil
}
