// Package ingestion applies source system records to canonical vendors through the ownership resolver.
package ingestion

import (
	"context"
	"errors"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	ferrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/ownership"
	fredis "github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// maxMergeHops bounds how far a natural key is followed through archived vendors
const maxMergeHops = 8

// Outcome is what one ingested record did to its vendor
type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeUpdated   Outcome = "updated"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeFailed    Outcome = "failed"
)

// Store is the persistence ingestion needs
type Store interface {
	GetVendor(ctx context.Context, vendorID string) (models.VendorRecord, error)
	FindBySourceKey(ctx context.Context, sourceSystem, sourceRecordID string) (models.VendorRecord, error)
	InsertVendor(ctx context.Context, record models.VendorRecord) (models.VendorRecord, error)
	UpdateVendor(ctx context.Context, record models.VendorRecord) (models.VendorRecord, error)
	LinkSourceKey(ctx context.Context, key models.SourceKey) error
	InTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Locker serializes writers of the same natural key
type Locker interface {
	WithLockWait(ctx context.Context, key string, ttl, timeout time.Duration, fn func(ctx context.Context) error) error
}

// Publisher announces ingestion writes
type Publisher interface {
	PublishUpserted(ctx context.Context, upsert models.VendorUpsert) error
}

// Config tunes ingestion
type Config struct {
	LockTTL  time.Duration
	LockWait time.Duration
	Workers  int
}

// Result is the outcome of one record
type Result struct {
	SourceSystem   string                 `json:"source_system"`
	SourceRecordID string                 `json:"source_record_id,omitempty"`
	VendorID       string                 `json:"vendor_id,omitempty"`
	Outcome        Outcome                `json:"outcome"`
	Conflicts      []models.MergeConflict `json:"conflicts"`
	Vendor         *models.VendorRecord   `json:"vendor,omitempty"`
	ErrorKind      ferrors.Kind           `json:"error_kind,omitempty"`
	Error          string                 `json:"error,omitempty"`
}

type Service struct {
	logger    ectologger.Logger
	store     Store
	locker    Locker
	resolver  *ownership.Resolver
	mapper    *Mapper
	publisher Publisher
	cfg       Config
	newID     func() string
}

func NewService(
	logger ectologger.Logger,
	store Store,
	locker Locker,
	resolver *ownership.Resolver,
	mapper *Mapper,
	publisher Publisher,
	cfg Config,
) *Service {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}
	if cfg.LockWait <= 0 {
		cfg.LockWait = 5 * time.Second
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if mapper == nil {
		mapper, _ = NewMapper(nil)
	}
	return &Service{
		logger:    logger,
		store:     store,
		locker:    locker,
		resolver:  resolver,
		mapper:    mapper,
		publisher: publisher,
		cfg:       cfg,
		newID:     func() string { return "vnd-" + uuid.NewString() },
	}
}

// Ingest resolves one raw source record into its canonical vendor, creating the vendor on first
// sight of the natural key. A concurrent write is retried once against fresh state.
func (s *Service) Ingest(ctx context.Context, sourceSystem string, raw map[string]any) (Result, error) {
	ctx, span := tracing.StartSpan(ctx, "ingestion.Service.Ingest")
	defer span.End()

	result, err := s.ingest(ctx, sourceSystem, raw)
	if err != nil {
		result.Outcome = OutcomeFailed
		result.ErrorKind = ferrors.KindOf(err)
		result.Error = err.Error()
	}
	metrics.RecordIngestion(sourceSystem, string(result.Outcome), resolutions(result.Conflicts))
	return result, err
}

func (s *Service) ingest(ctx context.Context, sourceSystem string, raw map[string]any) (Result, error) {
	result := Result{SourceSystem: sourceSystem, Conflicts: []models.MergeConflict{}}

	record, err := s.parse(sourceSystem, raw)
	if err != nil {
		return result, err
	}
	result.SourceRecordID = record.SourceRecordID

	log := s.logger.WithContext(ctx).WithFields(map[string]any{
		"source_system":    sourceSystem,
		"source_record_id": record.SourceRecordID,
	})

	lockKey := "ingest:" + sourceSystem + ":" + record.SourceRecordID
	err = s.locker.WithLockWait(ctx, lockKey, s.cfg.LockTTL, s.cfg.LockWait, func(ctx context.Context) error {
		var err error
		for attempt := 1; attempt <= 2; attempt++ {
			result, err = s.apply(ctx, record)
			if !ferrors.Is(err, ferrors.KindOptimisticConflict) {
				return err
			}
			log.WithError(err).Warnf("Concurrent vendor write on attempt %d", attempt)
		}
		return err
	})
	if errors.Is(err, fredis.ErrLockNotAcquired) {
		err = ferrors.Wrap(ferrors.KindOptimisticConflict, err, "another write to this vendor is in progress")
	}
	if err != nil {
		result.SourceSystem = sourceSystem
		result.SourceRecordID = record.SourceRecordID
		if result.Conflicts == nil {
			result.Conflicts = []models.MergeConflict{}
		}
		return result, err
	}

	if result.Outcome != OutcomeUnchanged && s.publisher != nil {
		upsert := models.VendorUpsert{
			VendorID:       result.VendorID,
			SourceSystem:   sourceSystem,
			SourceRecordID: record.SourceRecordID,
			Created:        result.Outcome == OutcomeCreated,
			Version:        result.Vendor.Version,
			ChangedFields:  changedFields(result.Conflicts, record, result.Vendor),
			Conflicts:      result.Conflicts,
			At:             time.Now().UTC(),
		}
		if err := s.publisher.PublishUpserted(context.WithoutCancel(ctx), upsert); err != nil {
			log.WithError(err).Error("Failed to publish vendor.upserted event")
		}
	}

	log.WithFields(map[string]any{
		"vendor_id": result.VendorID,
		"outcome":   result.Outcome,
		"conflicts": len(result.Conflicts),
	}).Debug("Ingested source record")

	return result, nil
}

// Preview resolves a record against the current canonical vendor without writing anything
func (s *Service) Preview(ctx context.Context, sourceSystem string, raw map[string]any) (Result, error) {
	ctx, span := tracing.StartSpan(ctx, "ingestion.Service.Preview")
	defer span.End()

	result := Result{SourceSystem: sourceSystem, Conflicts: []models.MergeConflict{}}
	record, err := s.parse(sourceSystem, raw)
	if err != nil {
		return result, err
	}
	result.SourceRecordID = record.SourceRecordID

	current, found, err := s.current(ctx, record)
	if err != nil {
		return result, err
	}
	if !found {
		current = models.NewVendorRecord("")
	}

	resolved, err := s.resolver.Resolve(current, record, sourceSystem)
	if err != nil {
		return result, err
	}

	result.VendorID = current.VendorID
	result.Conflicts = resolved.Conflicts
	result.Vendor = &resolved.Merged
	switch {
	case !found:
		result.Outcome = OutcomeCreated
	case resolved.Changed:
		result.Outcome = OutcomeUpdated
	default:
		result.Outcome = OutcomeUnchanged
	}
	return result, nil
}

func (s *Service) parse(sourceSystem string, raw map[string]any) (models.PartialRecord, error) {
	if err := s.resolver.Matrix().ValidateIngestionSource(sourceSystem); err != nil {
		return models.PartialRecord{}, err
	}
	mapped, err := s.mapper.Map(sourceSystem, raw)
	if err != nil {
		return models.PartialRecord{}, err
	}
	return models.ParsePartialRecord(sourceSystem, mapped)
}

// apply runs one read-resolve-write cycle in a transaction
func (s *Service) apply(ctx context.Context, record models.PartialRecord) (Result, error) {
	result := Result{
		SourceSystem:   record.SourceSystem,
		SourceRecordID: record.SourceRecordID,
		Conflicts:      []models.MergeConflict{},
	}

	err := s.store.InTransaction(ctx, func(ctx context.Context) error {
		current, found, err := s.current(ctx, record)
		if err != nil {
			return err
		}

		if !found {
			created, conflicts, err := s.create(ctx, record)
			if err != nil {
				return err
			}
			result.VendorID = created.VendorID
			result.Vendor = &created
			result.Conflicts = conflicts
			result.Outcome = OutcomeCreated
			return nil
		}

		resolved, err := s.resolver.Resolve(current, record, record.SourceSystem)
		if err != nil {
			return err
		}
		result.VendorID = current.VendorID
		result.Conflicts = resolved.Conflicts

		if !resolved.Changed {
			result.Vendor = &current
			result.Outcome = OutcomeUnchanged
			return nil
		}

		updated, err := s.store.UpdateVendor(ctx, resolved.Merged)
		if err != nil {
			return err
		}
		result.Vendor = &updated
		result.Outcome = OutcomeUpdated
		return nil
	})
	return result, err
}

// current finds the live vendor for a natural key, following merges to the survivor
func (s *Service) current(ctx context.Context, record models.PartialRecord) (models.VendorRecord, bool, error) {
	vendor, err := s.store.FindBySourceKey(ctx, record.SourceSystem, record.SourceRecordID)
	if ferrors.Is(err, ferrors.KindVendorNotFound) {
		return models.VendorRecord{}, false, nil
	}
	if err != nil {
		return models.VendorRecord{}, false, err
	}

	for hops := 0; vendor.IsArchived(); hops++ {
		if vendor.MergedInto == nil || hops >= maxMergeHops {
			return models.VendorRecord{}, false, ferrors.Newf(ferrors.KindArchivedVendor,
				"natural key %s/%s resolves to archived vendor %s", record.SourceSystem, record.SourceRecordID, vendor.VendorID)
		}
		if vendor, err = s.store.GetVendor(ctx, *vendor.MergedInto); err != nil {
			return models.VendorRecord{}, false, err
		}
	}
	return vendor, true, nil
}

func (s *Service) create(ctx context.Context, record models.PartialRecord) (models.VendorRecord, []models.MergeConflict, error) {
	resolved, err := s.resolver.Resolve(models.NewVendorRecord(s.newID()), record, record.SourceSystem)
	if err != nil {
		return models.VendorRecord{}, nil, err
	}
	vendor := resolved.Merged
	vendor.SourceSystem = record.SourceSystem
	vendor.SourceRecordID = record.SourceRecordID

	created, err := s.store.InsertVendor(ctx, vendor)
	if err != nil {
		return models.VendorRecord{}, nil, err
	}
	err = s.store.LinkSourceKey(ctx, models.SourceKey{
		SourceSystem:   record.SourceSystem,
		SourceRecordID: record.SourceRecordID,
		VendorID:       created.VendorID,
	})
	if err != nil {
		return models.VendorRecord{}, nil, err
	}
	return created, resolved.Conflicts, nil
}

// changedFields lists the fields that now carry this record's value under its source
func changedFields(conflicts []models.MergeConflict, record models.PartialRecord, vendor *models.VendorRecord) []models.FieldName {
	skipped := map[models.FieldName]bool{}
	for _, c := range conflicts {
		if !c.Applied {
			skipped[c.FieldName] = true
		}
	}
	var fields []models.FieldName
	for _, field := range models.SortedFieldNames(record.Values) {
		if skipped[field] || vendor == nil {
			continue
		}
		if vendor.FieldSources[field] == record.SourceSystem && vendor.Value(field).Equal(record.Values[field]) {
			fields = append(fields, field)
		}
	}
	return fields
}

func resolutions(conflicts []models.MergeConflict) []string {
	out := make([]string, 0, len(conflicts))
	for _, c := range conflicts {
		out = append(out, string(c.Resolution))
	}
	return out
}
