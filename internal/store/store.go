package store

import (
	"context"
	"database/sql"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/internal/repositories/entitygraph"
	"github.com/Ramsey-B/fern/internal/repositories/mergeexecution"
	"github.com/Ramsey-B/fern/internal/repositories/vendor"
	"github.com/Ramsey-B/fern/pkg/database"
	ferrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Store is the Postgres backed vendor master store. Every method joins the
// transaction bound to ctx by InTransaction, if any.
type Store struct {
	db         database.DB
	vendors    *vendor.Repository
	graph      *entitygraph.Repository
	executions *mergeexecution.Repository
}

func New(db database.DB, logger ectologger.Logger) *Store {
	return &Store{
		db:         db,
		vendors:    vendor.NewRepository(db, logger),
		graph:      entitygraph.NewRepository(db, logger),
		executions: mergeexecution.NewRepository(db, logger),
	}
}

// InTransaction runs fn in a read committed transaction
func (s *Store) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	err := database.WithTransaction(ctx, s.db, &sql.TxOptions{Isolation: sql.LevelReadCommitted}, fn)
	if err != nil && ferrors.KindOf(err) == "" {
		return ferrors.Wrap(ferrors.KindStoreFailure, err, "transaction failed")
	}
	return err
}

func (s *Store) GetVendor(ctx context.Context, vendorID string) (models.VendorRecord, error) {
	return s.vendors.Get(ctx, vendorID)
}

func (s *Store) FindBySourceKey(ctx context.Context, sourceSystem, sourceRecordID string) (models.VendorRecord, error) {
	return s.vendors.FindBySourceKey(ctx, sourceSystem, sourceRecordID)
}

func (s *Store) InsertVendor(ctx context.Context, record models.VendorRecord) (models.VendorRecord, error) {
	return s.vendors.Insert(ctx, record)
}

func (s *Store) UpdateVendor(ctx context.Context, record models.VendorRecord) (models.VendorRecord, error) {
	return s.vendors.Update(ctx, record)
}

func (s *Store) ArchiveVendor(ctx context.Context, vendorID, mergedInto string, expectedVersion int) error {
	return s.vendors.Archive(ctx, vendorID, mergedInto, expectedVersion)
}

func (s *Store) LockVendors(ctx context.Context, vendorIDs []string) error {
	return s.vendors.LockForUpdate(ctx, vendorIDs)
}

func (s *Store) LinkSourceKey(ctx context.Context, key models.SourceKey) error {
	return s.vendors.LinkSourceKey(ctx, key)
}

func (s *Store) ListSourceKeys(ctx context.Context, vendorID string) ([]models.SourceKey, error) {
	return s.vendors.ListSourceKeys(ctx, vendorID)
}

func (s *Store) MoveSourceKeys(ctx context.Context, fromVendorID, toVendorID string) (int, error) {
	return s.vendors.MoveSourceKeys(ctx, fromVendorID, toVendorID)
}

// GetEntityGraph loads a vendor together with its offerings and dependents
func (s *Store) GetEntityGraph(ctx context.Context, vendorID string) (models.EntityGraph, error) {
	ctx, span := tracing.StartSpan(ctx, "store.Store.GetEntityGraph")
	defer span.End()

	v, err := s.vendors.Get(ctx, vendorID)
	if err != nil {
		return models.EntityGraph{}, err
	}
	offerings, err := s.graph.ListOfferings(ctx, vendorID)
	if err != nil {
		return models.EntityGraph{}, err
	}
	dependents, err := s.graph.ListDependents(ctx, vendorID)
	if err != nil {
		return models.EntityGraph{}, err
	}

	return models.EntityGraph{
		Vendor:     v,
		Offerings:  offerings,
		Dependents: dependents,
	}, nil
}

func (s *Store) MoveOffering(ctx context.Context, offeringID, vendorID, name string) error {
	return s.graph.MoveOffering(ctx, offeringID, vendorID, name)
}

func (s *Store) ArchiveOffering(ctx context.Context, offeringID, mergedIntoOfferingID, vendorID string) error {
	return s.graph.ArchiveOffering(ctx, offeringID, mergedIntoOfferingID, vendorID)
}

func (s *Store) MoveOfferingDependents(ctx context.Context, fromOfferingID, toOfferingID, vendorID string) (map[models.EntityKind]int, error) {
	return s.graph.MoveOfferingDependents(ctx, fromOfferingID, toOfferingID, vendorID)
}

func (s *Store) MoveVendorDependents(ctx context.Context, fromVendorID, toVendorID string) (map[models.EntityKind]int, error) {
	return s.graph.MoveVendorDependents(ctx, fromVendorID, toVendorID)
}

func (s *Store) InsertExecution(ctx context.Context, record models.MergeExecutionRecord) error {
	return s.executions.Insert(ctx, record)
}

func (s *Store) GetExecution(ctx context.Context, id string) (models.MergeExecutionRecord, error) {
	return s.executions.Get(ctx, id)
}

func (s *Store) ListExecutions(ctx context.Context, vendorID string) ([]models.MergeExecutionRecord, error) {
	return s.executions.ListByVendor(ctx, vendorID)
}
