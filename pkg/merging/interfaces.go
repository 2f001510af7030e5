package merging

import (
	"context"
	"time"

	"github.com/Ramsey-B/fern/pkg/models"
)

// Store is the persistence the orchestrator needs. Calls made with the ctx handed
// to InTransaction's fn join that transaction.
type Store interface {
	GetEntityGraph(ctx context.Context, vendorID string) (models.EntityGraph, error)
	LockVendors(ctx context.Context, vendorIDs []string) error
	UpdateVendor(ctx context.Context, record models.VendorRecord) (models.VendorRecord, error)
	ArchiveVendor(ctx context.Context, vendorID, mergedInto string, expectedVersion int) error
	MoveOffering(ctx context.Context, offeringID, vendorID, name string) error
	ArchiveOffering(ctx context.Context, offeringID, mergedIntoOfferingID, vendorID string) error
	MoveOfferingDependents(ctx context.Context, fromOfferingID, toOfferingID, vendorID string) (map[models.EntityKind]int, error)
	MoveVendorDependents(ctx context.Context, fromVendorID, toVendorID string) (map[models.EntityKind]int, error)
	MoveSourceKeys(ctx context.Context, fromVendorID, toVendorID string) (int, error)
	InsertExecution(ctx context.Context, record models.MergeExecutionRecord) error
	InTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Locker serializes merges across service instances
type Locker interface {
	WithLocks(ctx context.Context, keys []string, ttl time.Duration, fn func(ctx context.Context) error) error
}

// SessionStore keeps merge sessions between requests
type SessionStore interface {
	Save(ctx context.Context, session *models.MergeSession) error
	Get(ctx context.Context, id string) (*models.MergeSession, error)
	Delete(ctx context.Context, id string) error
}

// Publisher announces committed merges
type Publisher interface {
	PublishMerged(ctx context.Context, record models.MergeExecutionRecord) error
}

// LineageRecorder keeps the vendor lineage graph in step with committed merges
type LineageRecorder interface {
	RecordMerge(ctx context.Context, record models.MergeExecutionRecord) error
}
