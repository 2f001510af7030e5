package merging

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Gobusters/ectologger"

	ferrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	fredis "github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// VendorLockKey is the distributed lock key guarding a vendor during a merge
func VendorLockKey(vendorID string) string {
	return "vendor:" + vendorID
}

// ExecuteMerge applies a validated session in one transaction: field decisions, offering
// remapping, dependent reassignment, source archival and the audit record. Either all of it
// commits or none of it does. Store failures are not retried; the session moves to failed with
// its decisions intact. actor is stamped onto the execution record.
func (o *Orchestrator) ExecuteMerge(ctx context.Context, sessionID, actor string) (*models.MergeExecutionRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Orchestrator.ExecuteMerge")
	defer span.End()

	if actor == "" {
		return nil, ferrors.New(ferrors.KindMissingActor, "an actor is required to execute a merge")
	}

	session, err := o.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(session.State, models.MergeStateExecuting) {
		return nil, ferrors.Newf(ferrors.KindInvalidSessionState, "merge session %s must be validated before executing, state is %s", session.ID, session.State)
	}

	candidate := session.Candidate
	log := o.logger.WithContext(ctx).WithFields(map[string]any{
		"session_id":         session.ID,
		"survivor_vendor_id": candidate.SurvivorVendorID,
		"source_vendor_id":   candidate.SourceVendorID,
	})

	keys := []string{VendorLockKey(candidate.SurvivorVendorID), VendorLockKey(candidate.SourceVendorID)}

	var record *models.MergeExecutionRecord
	start := time.Now()
	err = o.locker.WithLocks(ctx, keys, o.lockTTL, func(ctx context.Context) error {
		// the session may have moved while we waited on the network
		current, err := o.sessions.Get(ctx, sessionID)
		if err != nil {
			return err
		}
		if err := transition(current, models.MergeStateExecuting); err != nil {
			return err
		}
		current.UpdatedAt = o.now()
		if err := o.sessions.Save(ctx, current); err != nil {
			return err
		}
		metrics.RecordSessionTransition(string(current.State))

		record, err = o.execute(ctx, current, actor, log)
		return err
	})
	if errors.Is(err, fredis.ErrLockNotAcquired) {
		metrics.RecordMergeExecution("in_progress", time.Since(start).Seconds())
		return nil, ferrors.Wrap(ferrors.KindMergeInProgress, err, "a merge involving one of these vendors is already in progress")
	}
	if err != nil {
		if !ferrors.Is(err, ferrors.KindInvalidSessionState) && !ferrors.Is(err, ferrors.KindSessionNotFound) {
			metrics.RecordMergeExecution("failed", time.Since(start).Seconds())
		}
		return nil, err
	}

	metrics.RecordMergeExecution("committed", time.Since(start).Seconds())
	o.afterCommit(ctx, *record, log)
	return record, nil
}

// execute runs the transaction for a session already in executing and settles the session state
func (o *Orchestrator) execute(ctx context.Context, session *models.MergeSession, actor string, log ectologger.Logger) (*models.MergeExecutionRecord, error) {
	var record models.MergeExecutionRecord
	err := o.store.InTransaction(ctx, func(ctx context.Context) error {
		var err error
		record, err = o.apply(ctx, session, actor)
		return err
	})
	if err != nil {
		if _, ok := ferrors.As(err); !ok {
			err = ferrors.Wrap(ferrors.KindStoreFailure, err, "merge failed, no changes applied")
		}
		next := models.MergeStateFailed
		if ferrors.Is(err, ferrors.KindMergeInProgress) {
			next = models.MergeStateValidated
		}
		if terr := transition(session, next); terr != nil {
			return nil, terr
		}
		session.LastError = err.Error()
		session.UpdatedAt = o.now()
		if serr := o.sessions.Save(context.WithoutCancel(ctx), session); serr != nil {
			log.WithError(serr).Error("Failed to save merge session after rollback")
		}
		metrics.RecordSessionTransition(string(session.State))

		log.WithError(err).WithField("kind", string(ferrors.KindOf(err))).Warn("Merge rolled back, no changes applied")
		return nil, err
	}

	if err := transition(session, models.MergeStateCommitted); err != nil {
		return nil, err
	}
	session.ExecutionID = record.ID
	metrics.RecordSessionTransition(string(session.State))
	if err := o.sessions.Delete(context.WithoutCancel(ctx), session.ID); err != nil {
		log.WithError(err).Warn("Failed to delete committed merge session")
	}

	log.WithFields(map[string]any{
		"execution_id":    record.ID,
		"reassigned_keys": record.ReassignedKeys,
		"offerings":       len(record.OfferingRemap),
	}).Info("Merge committed")

	return &record, nil
}

// apply performs every write of a merge. It must run inside a store transaction.
func (o *Orchestrator) apply(ctx context.Context, session *models.MergeSession, actor string) (models.MergeExecutionRecord, error) {
	candidate := session.Candidate
	ids := []string{candidate.SurvivorVendorID, candidate.SourceVendorID}
	sort.Strings(ids)
	if err := o.store.LockVendors(ctx, ids); err != nil {
		return models.MergeExecutionRecord{}, err
	}

	survivor, source, err := o.loadGraphs(ctx, candidate)
	if err != nil {
		return models.MergeExecutionRecord{}, err
	}
	if survivor.Vendor.Version != session.SurvivorVersion || source.Vendor.Version != session.SourceVersion {
		return models.MergeExecutionRecord{}, ferrors.Newf(ferrors.KindOptimisticConflict,
			"vendors changed since the merge was proposed (survivor v%d to v%d, source v%d to v%d), review the merge again",
			session.SurvivorVersion, survivor.Vendor.Version, session.SourceVersion, source.Vendor.Version)
	}
	if details := Validate(survivor, source, session.FieldDecisions, session.OfferingDecisions); len(details) > 0 {
		return models.MergeExecutionRecord{}, ValidationFailure(details)
	}

	now := o.now()

	// (1) field decisions
	merged := applyFieldDecisions(survivor.Vendor, source.Vendor, session.FieldDecisions, actor, now)
	if _, err := o.store.UpdateVendor(ctx, merged); err != nil {
		return models.MergeExecutionRecord{}, err
	}

	// (2) offerings
	reassigned := map[models.EntityKind]int{}
	remap, err := o.remapOfferings(ctx, survivor, source, session.OfferingDecisions, reassigned)
	if err != nil {
		return models.MergeExecutionRecord{}, err
	}

	// (3) everything else the source owns, including its natural keys
	moved, err := o.store.MoveVendorDependents(ctx, source.Vendor.VendorID, survivor.Vendor.VendorID)
	if err != nil {
		return models.MergeExecutionRecord{}, err
	}
	for kind, n := range moved {
		reassigned[kind] += n
	}
	movedKeys, err := o.store.MoveSourceKeys(ctx, source.Vendor.VendorID, survivor.Vendor.VendorID)
	if err != nil {
		return models.MergeExecutionRecord{}, err
	}

	// (4)
	if err := o.store.ArchiveVendor(ctx, source.Vendor.VendorID, survivor.Vendor.VendorID, source.Vendor.Version); err != nil {
		return models.MergeExecutionRecord{}, err
	}

	// (5)
	record := models.MergeExecutionRecord{
		ID:                 o.newID(),
		SessionID:          session.ID,
		SurvivorVendorID:   survivor.Vendor.VendorID,
		SourceVendorID:     source.Vendor.VendorID,
		FieldDecisions:     session.FieldDecisions,
		OfferingDecisions:  session.OfferingDecisions,
		OfferingRemap:      remap,
		ReassignedEntities: reassigned,
		ReassignedKeys:     movedKeys,
		Actor:              actor,
		ExecutedAt:         now,
	}
	if err := o.store.InsertExecution(ctx, record); err != nil {
		return models.MergeExecutionRecord{}, err
	}
	return record, nil
}

func applyFieldDecisions(survivor, source models.VendorRecord, decisions []models.FieldMergeDecision, actor string, now time.Time) models.VendorRecord {
	merged := survivor.Clone()
	for _, d := range decisions {
		switch d.ChosenSource {
		case models.ChosenSourceSource:
			merged.SetField(d.FieldName, source.Value(d.FieldName), source.FieldSources[d.FieldName])
			if override, ok := source.Overrides[d.FieldName]; ok {
				merged.Overrides[d.FieldName] = override
			} else {
				delete(merged.Overrides, d.FieldName)
			}
		case models.ChosenSourceManualValue:
			value, err := d.ChosenValue.Coerce(models.KnownFields[d.FieldName])
			if err != nil {
				// Validate already rejected uncoercible values
				continue
			}
			merged.SetField(d.FieldName, value, models.SourceAppUserEdit)
			merged.Overrides[d.FieldName] = models.FieldOverride{SetBy: actor, SetAt: now}
		}
	}
	return merged
}

func (o *Orchestrator) remapOfferings(
	ctx context.Context,
	survivor, source models.EntityGraph,
	decisions []models.OfferingCollisionDecision,
	reassigned map[models.EntityKind]int,
) ([]models.OfferingRemap, error) {
	byOffering := map[string]models.OfferingCollisionDecision{}
	for _, d := range decisions {
		byOffering[d.SourceOfferingID] = d
	}

	offerings := source.ActiveOfferings()
	sort.Slice(offerings, func(i, j int) bool { return offerings[i].ID < offerings[j].ID })

	survivorID := survivor.Vendor.VendorID
	remap := make([]models.OfferingRemap, 0, len(offerings))
	for _, offering := range offerings {
		d, explicit := byOffering[offering.ID]
		if !explicit {
			d = models.OfferingCollisionDecision{SourceOfferingID: offering.ID, Action: models.CollisionKeepAsNew}
		}
		entry := models.OfferingRemap{
			SourceOfferingID: offering.ID,
			Action:           d.Action,
			Implicit:         !explicit,
		}

		switch d.Action {
		case models.CollisionMergeIntoTarget:
			target := *d.TargetOfferingID
			moved, err := o.store.MoveOfferingDependents(ctx, offering.ID, target, survivorID)
			if err != nil {
				return nil, err
			}
			for kind, n := range moved {
				reassigned[kind] += n
			}
			if err := o.store.ArchiveOffering(ctx, offering.ID, target, survivorID); err != nil {
				return nil, err
			}
			entry.TargetOfferingID = &target
		case models.CollisionKeepWithRename:
			entry.NewName = renamed(offering.Name, source.Vendor)
			if err := o.store.MoveOffering(ctx, offering.ID, survivorID, entry.NewName); err != nil {
				return nil, err
			}
		default:
			if err := o.store.MoveOffering(ctx, offering.ID, survivorID, ""); err != nil {
				return nil, err
			}
		}
		reassigned[models.EntityKindOffering]++
		remap = append(remap, entry)
	}
	return remap, nil
}

// renamed suffixes an offering name with the vendor it came from
func renamed(name string, source models.VendorRecord) string {
	from := source.Value(models.FieldLegalName).String()
	if from == "" {
		from = source.VendorID
	}
	return fmt.Sprintf("%s (from %s)", name, from)
}

// afterCommit announces the merge. Failures here never undo the commit.
func (o *Orchestrator) afterCommit(ctx context.Context, record models.MergeExecutionRecord, log ectologger.Logger) {
	ctx = context.WithoutCancel(ctx)
	if o.publisher != nil {
		if err := o.publisher.PublishMerged(ctx, record); err != nil {
			log.WithError(err).Error("Failed to publish vendor.merged event")
		}
	}
	if o.lineage != nil {
		if err := o.lineage.RecordMerge(ctx, record); err != nil {
			log.WithError(err).Error("Failed to record merge lineage")
		}
	}
}
