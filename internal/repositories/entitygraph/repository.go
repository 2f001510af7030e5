package entitygraph

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

type table struct {
	name        string
	labelColumn string
}

var tables = map[models.EntityKind]table{
	models.EntityKindContract:      {name: "contracts", labelColumn: "title"},
	models.EntityKindDemo:          {name: "demos", labelColumn: "title"},
	models.EntityKindOwner:         {name: "owners", labelColumn: "user_id"},
	models.EntityKindContact:       {name: "contacts", labelColumn: "name"},
	models.EntityKindDocumentLink:  {name: "document_links", labelColumn: "title"},
	models.EntityKindOrgAssignment: {name: "org_assignments", labelColumn: "org_unit"},
}

var offeringColumns = []string{"id", "vendor_id", "name", "status", "merged_into_offering_id", "created_at", "updated_at"}

// Repository reads and repoints everything a vendor owns
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

// ListOfferings returns every offering of a vendor, archived ones included
func (r *Repository) ListOfferings(ctx context.Context, vendorID string) ([]models.Offering, error) {
	ctx, span := tracing.StartSpan(ctx, "entitygraph.Repository.ListOfferings")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(offeringColumns...)
	sb.From("offerings")
	sb.Where(sb.Equal("vendor_id", vendorID))
	sb.OrderBy("created_at ASC", "id ASC")

	query, args := sb.Build()
	offerings := []models.Offering{}
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &offerings, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list offerings")
		return nil, ferrors.Wrap(ferrors.KindStoreFailure, err, "failed to list offerings")
	}

	return offerings, nil
}

// ListDependents returns the contracts, demos, owners, contacts, document links and org assignments of a vendor
func (r *Repository) ListDependents(ctx context.Context, vendorID string) ([]models.Dependent, error) {
	ctx, span := tracing.StartSpan(ctx, "entitygraph.Repository.ListDependents")
	defer span.End()

	dependents := []models.Dependent{}
	for _, kind := range models.DependentKinds {
		t := tables[kind]
		offeringColumn := "NULL::text"
		if kind.OfferingScoped() {
			offeringColumn = "offering_id"
		}

		sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
		sb.Select("id", "vendor_id", sb.As(offeringColumn, "offering_id"), sb.As(t.labelColumn, "label"))
		sb.From(t.name)
		sb.Where(sb.Equal("vendor_id", vendorID))
		sb.OrderBy("id ASC")

		query, args := sb.Build()
		var rows []models.Dependent
		if err := database.Conn(ctx, r.db).SelectContext(ctx, &rows, query, args...); err != nil {
			r.logger.WithContext(ctx).WithError(err).WithField("table", t.name).Error("Failed to list dependents")
			return nil, ferrors.Wrap(ferrors.KindStoreFailure, err, "failed to list "+t.name)
		}
		for i := range rows {
			rows[i].Kind = kind
		}
		dependents = append(dependents, rows...)
	}

	return dependents, nil
}

// MoveOffering reassigns an offering to a vendor, renaming it when name is not empty
func (r *Repository) MoveOffering(ctx context.Context, offeringID, vendorID, name string) error {
	ctx, span := tracing.StartSpan(ctx, "entitygraph.Repository.MoveOffering")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("offerings")
	assignments := []string{
		sb.Assign("vendor_id", vendorID),
		sb.Assign("updated_at", time.Now().UTC()),
	}
	if name != "" {
		assignments = append(assignments, sb.Assign("name", name))
	}
	sb.Set(assignments...)
	sb.Where(sb.Equal("id", offeringID))

	return r.execOne(ctx, sb, "move offering "+offeringID)
}

// ArchiveOffering retires an offering that was folded into another
func (r *Repository) ArchiveOffering(ctx context.Context, offeringID, mergedIntoOfferingID, vendorID string) error {
	ctx, span := tracing.StartSpan(ctx, "entitygraph.Repository.ArchiveOffering")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("offerings")
	sb.Set(
		sb.Assign("vendor_id", vendorID),
		sb.Assign("status", string(models.OfferingStatusArchived)),
		sb.Assign("merged_into_offering_id", mergedIntoOfferingID),
		sb.Assign("updated_at", time.Now().UTC()),
	)
	sb.Where(sb.Equal("id", offeringID))

	return r.execOne(ctx, sb, "archive offering "+offeringID)
}

// MoveOfferingDependents repoints everything hanging off one offering to another
func (r *Repository) MoveOfferingDependents(ctx context.Context, fromOfferingID, toOfferingID, vendorID string) (map[models.EntityKind]int, error) {
	ctx, span := tracing.StartSpan(ctx, "entitygraph.Repository.MoveOfferingDependents")
	defer span.End()

	moved := map[models.EntityKind]int{}
	for _, kind := range models.DependentKinds {
		if !kind.OfferingScoped() {
			continue
		}
		sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
		sb.Update(tables[kind].name)
		sb.Set(
			sb.Assign("offering_id", toOfferingID),
			sb.Assign("vendor_id", vendorID),
			sb.Assign("updated_at", time.Now().UTC()),
		)
		sb.Where(sb.Equal("offering_id", fromOfferingID))

		n, err := r.exec(ctx, sb, "move "+tables[kind].name)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			moved[kind] += n
		}
	}

	return moved, nil
}

// MoveVendorDependents repoints every remaining row owned by one vendor, offerings included
func (r *Repository) MoveVendorDependents(ctx context.Context, fromVendorID, toVendorID string) (map[models.EntityKind]int, error) {
	ctx, span := tracing.StartSpan(ctx, "entitygraph.Repository.MoveVendorDependents")
	defer span.End()

	moved := map[models.EntityKind]int{}
	targets := map[models.EntityKind]string{models.EntityKindOffering: "offerings"}
	for kind, t := range tables {
		targets[kind] = t.name
	}

	for _, kind := range append([]models.EntityKind{models.EntityKindOffering}, models.DependentKinds...) {
		sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
		sb.Update(targets[kind])
		sb.Set(
			sb.Assign("vendor_id", toVendorID),
			sb.Assign("updated_at", time.Now().UTC()),
		)
		sb.Where(sb.Equal("vendor_id", fromVendorID))

		n, err := r.exec(ctx, sb, "move "+targets[kind])
		if err != nil {
			return nil, err
		}
		if n > 0 {
			moved[kind] += n
		}
	}

	return moved, nil
}

func (r *Repository) exec(ctx context.Context, sb *sqlbuilder.UpdateBuilder, action string) (int, error) {
	query, args := sb.Build()
	result, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Errorf("Failed to %s", action)
		return 0, ferrors.Wrap(ferrors.KindStoreFailure, err, "failed to "+action)
	}
	rows, _ := result.RowsAffected()
	return int(rows), nil
}

func (r *Repository) execOne(ctx context.Context, sb *sqlbuilder.UpdateBuilder, action string) error {
	n, err := r.exec(ctx, sb, action)
	if err != nil {
		return err
	}
	if n == 0 {
		return ferrors.Newf(ferrors.KindStoreFailure, "failed to %s: no rows updated", action)
	}
	return nil
}
