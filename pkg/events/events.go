// Package events publishes vendor lifecycle events after their changes commit.
package events

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	fcontext "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

// EventType defines the type of event
type EventType string

const (
	EventTypeVendorUpserted        EventType = "vendor.upserted"
	EventTypeVendorMerged          EventType = "vendor.merged"
	EventTypeVendorOverrideSet     EventType = "vendor.override_set"
	EventTypeVendorOverrideCleared EventType = "vendor.override_cleared"
)

// Event is the envelope written to the vendor events topic
type Event struct {
	EventID       string    `json:"event_id"`
	EventType     EventType `json:"event_type"`
	SchemaVersion string    `json:"schema_version"`
	VendorID      string    `json:"vendor_id"`
	RequestID     string    `json:"request_id,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
	Data          any       `json:"data"`
}

// Producer is the part of kafka.Producer the emitter uses
type Producer interface {
	Publish(ctx context.Context, key string, headers map[string]string, payload any) error
}

// Emitter handles event emission for fern
type Emitter struct {
	producer Producer
	logger   ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(producer Producer, logger ectologger.Logger) *Emitter {
	return &Emitter{
		producer: producer,
		logger:   logger,
	}
}

// PublishMerged emits vendor.merged keyed by the survivor
func (e *Emitter) PublishMerged(ctx context.Context, record models.MergeExecutionRecord) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.PublishMerged")
	defer span.End()

	return e.emit(ctx, EventTypeVendorMerged, record.SurvivorVendorID, record)
}

// PublishUpserted emits vendor.upserted
func (e *Emitter) PublishUpserted(ctx context.Context, upsert models.VendorUpsert) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.PublishUpserted")
	defer span.End()

	return e.emit(ctx, EventTypeVendorUpserted, upsert.VendorID, upsert)
}

// PublishOverride emits vendor.override_set or vendor.override_cleared
func (e *Emitter) PublishOverride(ctx context.Context, change models.OverrideChange) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.PublishOverride")
	defer span.End()

	eventType := EventTypeVendorOverrideCleared
	if change.Set {
		eventType = EventTypeVendorOverrideSet
	}
	return e.emit(ctx, eventType, change.VendorID, change)
}

func (e *Emitter) emit(ctx context.Context, eventType EventType, vendorID string, data any) error {
	event := Event{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		SchemaVersion: SchemaVersion,
		VendorID:      vendorID,
		RequestID:     fcontext.GetRequestID(ctx),
		Timestamp:     time.Now().UTC(),
		Data:          data,
	}
	headers := map[string]string{
		kafka.HeaderEventType:     string(eventType),
		kafka.HeaderSchemaVersion: SchemaVersion,
	}
	if event.RequestID != "" {
		headers[kafka.HeaderRequestID] = event.RequestID
	}

	if err := e.producer.Publish(ctx, vendorID, headers, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"event_type": eventType,
			"vendor_id":  vendorID,
		}).Error("Failed to emit event")
		return err
	}
	return nil
}
