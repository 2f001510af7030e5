// Package vendors serves canonical vendor reads and human stewardship edits.
package vendors

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"

	ferrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

type Store interface {
	GetVendor(ctx context.Context, vendorID string) (models.VendorRecord, error)
	UpdateVendor(ctx context.Context, record models.VendorRecord) (models.VendorRecord, error)
	ListSourceKeys(ctx context.Context, vendorID string) ([]models.SourceKey, error)
	ListExecutions(ctx context.Context, vendorID string) ([]models.MergeExecutionRecord, error)
}

type Publisher interface {
	PublishOverride(ctx context.Context, change models.OverrideChange) error
}

// LineageReader answers which vendors were merged into a vendor
type LineageReader interface {
	Lineage(ctx context.Context, vendorID string) ([]string, error)
}

// VendorView is a vendor with its natural key links
type VendorView struct {
	models.VendorRecord
	SourceKeys []models.SourceKey `json:"source_keys"`
}

type Service struct {
	logger    ectologger.Logger
	store     Store
	publisher Publisher
	lineage   LineageReader
	now       func() time.Time
}

// NewService creates the vendor service. publisher and lineage may be nil.
func NewService(logger ectologger.Logger, store Store, publisher Publisher, lineage LineageReader) *Service {
	return &Service{
		logger:    logger,
		store:     store,
		publisher: publisher,
		lineage:   lineage,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) Get(ctx context.Context, vendorID string) (VendorView, error) {
	ctx, span := tracing.StartSpan(ctx, "vendors.Service.Get")
	defer span.End()

	vendor, err := s.store.GetVendor(ctx, vendorID)
	if err != nil {
		return VendorView{}, err
	}
	keys, err := s.store.ListSourceKeys(ctx, vendorID)
	if err != nil {
		return VendorView{}, err
	}
	return VendorView{VendorRecord: vendor, SourceKeys: keys}, nil
}

// SetFieldOverride writes a human value and locks the field against ingestion.
// expectedVersion, when non-zero, must match the stored version.
func (s *Service) SetFieldOverride(ctx context.Context, vendorID string, field models.FieldName, value models.Value, actor string, expectedVersion int) (models.VendorRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "vendors.Service.SetFieldOverride")
	defer span.End()

	kind, ok := models.KnownFields[field]
	if !ok {
		return models.VendorRecord{}, ferrors.Newf(ferrors.KindUnknownField, "unknown field %q", field)
	}
	if value.IsEmpty() {
		return models.VendorRecord{}, ferrors.Newf(ferrors.KindInvalidFieldDecision, "override for %s needs a value", field)
	}
	coerced, err := value.Coerce(kind)
	if err != nil {
		return models.VendorRecord{}, ferrors.Wrap(ferrors.KindInvalidFieldDecision, err, "invalid override value for "+string(field))
	}

	vendor, err := s.editable(ctx, vendorID, expectedVersion)
	if err != nil {
		return models.VendorRecord{}, err
	}

	now := s.now()
	vendor.SetField(field, coerced, models.SourceAppUserEdit)
	vendor.Overrides[field] = models.FieldOverride{SetBy: actor, SetAt: now}

	updated, err := s.store.UpdateVendor(ctx, vendor)
	if err != nil {
		return models.VendorRecord{}, err
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"vendor_id": vendorID,
		"field":     field,
		"actor":     actor,
	}).Info("Field override set")

	s.publish(ctx, models.OverrideChange{
		VendorID:  vendorID,
		FieldName: field,
		Value:     coerced,
		Set:       true,
		Actor:     actor,
		Version:   updated.Version,
		At:        now,
	})
	return updated, nil
}

// ClearFieldOverride releases a field back to source priority. The value stays, still
// attributed to app-user-edit, so fields where human edits rank first remain closed to
// ingestion; elsewhere the next higher ranked source replaces it.
func (s *Service) ClearFieldOverride(ctx context.Context, vendorID string, field models.FieldName, actor string, expectedVersion int) (models.VendorRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "vendors.Service.ClearFieldOverride")
	defer span.End()

	if !models.IsKnownField(field) {
		return models.VendorRecord{}, ferrors.Newf(ferrors.KindUnknownField, "unknown field %q", field)
	}

	vendor, err := s.editable(ctx, vendorID, expectedVersion)
	if err != nil {
		return models.VendorRecord{}, err
	}
	if !vendor.IsOverridden(field) {
		return vendor, nil
	}
	delete(vendor.Overrides, field)

	updated, err := s.store.UpdateVendor(ctx, vendor)
	if err != nil {
		return models.VendorRecord{}, err
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"vendor_id": vendorID,
		"field":     field,
		"actor":     actor,
	}).Info("Field override cleared")

	s.publish(ctx, models.OverrideChange{
		VendorID:  vendorID,
		FieldName: field,
		Value:     updated.Value(field),
		Actor:     actor,
		Version:   updated.Version,
		At:        s.now(),
	})
	return updated, nil
}

// MergeHistory lists merges where the vendor was survivor or source, newest first
func (s *Service) MergeHistory(ctx context.Context, vendorID string) ([]models.MergeExecutionRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "vendors.Service.MergeHistory")
	defer span.End()

	if _, err := s.store.GetVendor(ctx, vendorID); err != nil {
		return nil, err
	}
	return s.store.ListExecutions(ctx, vendorID)
}

// Lineage lists every vendor merged, directly or transitively, into vendorID
func (s *Service) Lineage(ctx context.Context, vendorID string) ([]string, error) {
	ctx, span := tracing.StartSpan(ctx, "vendors.Service.Lineage")
	defer span.End()

	if _, err := s.store.GetVendor(ctx, vendorID); err != nil {
		return nil, err
	}
	if s.lineage == nil {
		return []string{}, nil
	}
	return s.lineage.Lineage(ctx, vendorID)
}

func (s *Service) editable(ctx context.Context, vendorID string, expectedVersion int) (models.VendorRecord, error) {
	vendor, err := s.store.GetVendor(ctx, vendorID)
	if err != nil {
		return models.VendorRecord{}, err
	}
	if vendor.IsArchived() {
		return models.VendorRecord{}, ferrors.Newf(ferrors.KindArchivedVendor, "vendor %s is archived", vendorID)
	}
	if expectedVersion != 0 && expectedVersion != vendor.Version {
		return models.VendorRecord{}, ferrors.Newf(ferrors.KindOptimisticConflict,
			"vendor %s is at version %d, not %d", vendorID, vendor.Version, expectedVersion)
	}
	return vendor, nil
}

func (s *Service) publish(ctx context.Context, change models.OverrideChange) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishOverride(context.WithoutCancel(ctx), change); err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to publish override event")
	}
}
