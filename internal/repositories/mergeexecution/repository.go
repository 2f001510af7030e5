package mergeexecution

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/fern/pkg/database"
	ferrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

var columns = []string{
	"id", "session_id", "survivor_vendor_id", "source_vendor_id", "field_decisions", "offering_decisions",
	"offering_remap", "reassigned_entities", "reassigned_keys", "actor", "executed_at",
}

type executionRow struct {
	ID                 string                                             `db:"id"`
	SessionID          string                                             `db:"session_id"`
	SurvivorVendorID   string                                             `db:"survivor_vendor_id"`
	SourceVendorID     string                                             `db:"source_vendor_id"`
	FieldDecisions     database.JSONB[[]models.FieldMergeDecision]        `db:"field_decisions"`
	OfferingDecisions  database.JSONB[[]models.OfferingCollisionDecision] `db:"offering_decisions"`
	OfferingRemap      database.JSONB[[]models.OfferingRemap]             `db:"offering_remap"`
	ReassignedEntities database.JSONB[map[models.EntityKind]int]          `db:"reassigned_entities"`
	ReassignedKeys     int                                                `db:"reassigned_keys"`
	Actor              string                                             `db:"actor"`
	ExecutedAt         time.Time                                          `db:"executed_at"`
}

func (r executionRow) toModel() models.MergeExecutionRecord {
	return models.MergeExecutionRecord{
		ID:                 r.ID,
		SessionID:          r.SessionID,
		SurvivorVendorID:   r.SurvivorVendorID,
		SourceVendorID:     r.SourceVendorID,
		FieldDecisions:     r.FieldDecisions.Data,
		OfferingDecisions:  r.OfferingDecisions.Data,
		OfferingRemap:      r.OfferingRemap.Data,
		ReassignedEntities: r.ReassignedEntities.Data,
		ReassignedKeys:     r.ReassignedKeys,
		Actor:              r.Actor,
		ExecutedAt:         r.ExecutedAt,
	}
}

// Repository is the append-only audit log of committed merges
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Insert writes the audit row for a committed merge
func (r *Repository) Insert(ctx context.Context, record models.MergeExecutionRecord) error {
	ctx, span := tracing.StartSpan(ctx, "mergeexecution.Repository.Insert")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("merge_executions")
	sb.Cols(columns...)
	sb.Values(
		record.ID,
		record.SessionID,
		record.SurvivorVendorID,
		record.SourceVendorID,
		database.NewJSONB(record.FieldDecisions),
		database.NewJSONB(record.OfferingDecisions),
		database.NewJSONB(record.OfferingRemap),
		database.NewJSONB(record.ReassignedEntities),
		record.ReassignedKeys,
		record.Actor,
		record.ExecutedAt,
	)

	query, args := sb.Build()
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to insert merge execution")
		return ferrors.Wrap(ferrors.KindStoreFailure, err, "failed to insert merge execution")
	}

	return nil
}

// Get loads one merge execution
func (r *Repository) Get(ctx context.Context, id string) (models.MergeExecutionRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "mergeexecution.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("merge_executions")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var row executionRow
	if err := database.Conn(ctx, r.db).GetContext(ctx, &row, query, args...); err != nil {
		if database.IsNoRows(err) {
			return models.MergeExecutionRecord{}, ferrors.Newf(ferrors.KindExecutionNotFound, "merge execution %s not found", id)
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get merge execution")
		return models.MergeExecutionRecord{}, ferrors.Wrap(ferrors.KindStoreFailure, err, "failed to get merge execution")
	}

	return row.toModel(), nil
}

// ListByVendor returns the merges a vendor took part in, newest first
func (r *Repository) ListByVendor(ctx context.Context, vendorID string) ([]models.MergeExecutionRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "mergeexecution.Repository.ListByVendor")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("merge_executions")
	sb.Where(sb.Or(
		sb.Equal("survivor_vendor_id", vendorID),
		sb.Equal("source_vendor_id", vendorID),
	))
	sb.OrderBy("executed_at DESC")

	query, args := sb.Build()
	var rows []executionRow
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list merge executions")
		return nil, ferrors.Wrap(ferrors.KindStoreFailure, err, "failed to list merge executions")
	}

	records := make([]models.MergeExecutionRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.toModel())
	}
	return records, nil
}
