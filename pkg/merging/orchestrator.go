// Package merging runs the human-reviewed duplicate vendor merge: propose, decide, validate, execute.
package merging

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	fcontext "github.com/Ramsey-B/fern/pkg/context"
	ferrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/ownership"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const defaultLockTTL = 2 * time.Minute

// Config tunes the orchestrator
type Config struct {
	// LockTTL bounds how long the merge-in-progress locks live if a process dies mid-merge
	LockTTL time.Duration
}

// Orchestrator drives merge sessions through their state machine
type Orchestrator struct {
	logger    ectologger.Logger
	store     Store
	locker    Locker
	sessions  SessionStore
	matrix    *ownership.Matrix
	publisher Publisher
	lineage   LineageRecorder
	lockTTL   time.Duration
	now       func() time.Time
	newID     func() string
}

// NewOrchestrator creates a merge orchestrator. publisher and lineage may be nil.
func NewOrchestrator(
	logger ectologger.Logger,
	store Store,
	locker Locker,
	sessions SessionStore,
	matrix *ownership.Matrix,
	publisher Publisher,
	lineage LineageRecorder,
	cfg Config,
) *Orchestrator {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = defaultLockTTL
	}
	return &Orchestrator{
		logger:    logger,
		store:     store,
		locker:    locker,
		sessions:  sessions,
		matrix:    matrix,
		publisher: publisher,
		lineage:   lineage,
		lockTTL:   cfg.LockTTL,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}
}

// ProposeMerge loads both vendors, computes the differing fields with suggestions and the
// offering collisions, and opens a session in candidate_proposed.
func (o *Orchestrator) ProposeMerge(ctx context.Context, candidate models.MergeCandidate) (*models.MergeSession, error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Orchestrator.ProposeMerge")
	defer span.End()

	log := o.logger.WithContext(ctx).WithFields(map[string]any{
		"survivor_vendor_id": candidate.SurvivorVendorID,
		"source_vendor_id":   candidate.SourceVendorID,
	})

	if candidate.SurvivorVendorID == candidate.SourceVendorID {
		return nil, ValidationFailure(validateCandidate(
			models.VendorRecord{VendorID: candidate.SurvivorVendorID},
			models.VendorRecord{VendorID: candidate.SourceVendorID},
		))
	}

	survivor, source, err := o.loadGraphs(ctx, candidate)
	if err != nil {
		return nil, err
	}
	if details := validateCandidate(survivor.Vendor, source.Vendor); len(details) > 0 {
		return nil, ValidationFailure(details)
	}

	now := o.now()
	session := &models.MergeSession{
		ID:                o.newID(),
		State:             models.MergeStateCandidateProposed,
		Candidate:         candidate,
		SurvivorVersion:   survivor.Vendor.Version,
		SourceVersion:     source.Vendor.Version,
		Differences:       Differences(o.matrix, survivor.Vendor, source.Vendor),
		Collisions:        Collisions(survivor, source),
		FieldDecisions:    []models.FieldMergeDecision{},
		OfferingDecisions: []models.OfferingCollisionDecision{},
		CreatedBy:         fcontext.GetActor(ctx),
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := o.sessions.Save(ctx, session); err != nil {
		return nil, err
	}
	metrics.RecordSessionTransition(string(session.State))

	log.WithFields(map[string]any{
		"session_id":  session.ID,
		"differences": len(session.Differences),
		"collisions":  len(session.Collisions),
	}).Info("Merge proposed")

	return session, nil
}

// GetSession returns a session by id
func (o *Orchestrator) GetSession(ctx context.Context, sessionID string) (*models.MergeSession, error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Orchestrator.GetSession")
	defer span.End()

	return o.sessions.Get(ctx, sessionID)
}

// SubmitDecisions records field and offering decisions. A decision replaces any earlier
// decision for the same field or offering. Survivor and source choices take their value
// from the proposal snapshot.
func (o *Orchestrator) SubmitDecisions(
	ctx context.Context,
	sessionID string,
	fieldDecisions []models.FieldMergeDecision,
	offeringDecisions []models.OfferingCollisionDecision,
) (*models.MergeSession, error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Orchestrator.SubmitDecisions")
	defer span.End()

	session, err := o.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := transition(session, models.MergeStateDecisionsPending); err != nil {
		return nil, err
	}

	diffs := map[models.FieldName]models.FieldDifference{}
	for _, d := range session.Differences {
		diffs[d.FieldName] = d
	}

	var details []ferrors.ValidationError
	for _, d := range fieldDecisions {
		key := "field:" + string(d.FieldName)
		kind, known := models.KnownFields[d.FieldName]
		if !known {
			details = append(details, invalid(ferrors.KindUnknownField, key, string(d.FieldName), "", "unknown field"))
			continue
		}

		switch d.ChosenSource {
		case models.ChosenSourceSurvivor:
			d.ChosenValue = diffs[d.FieldName].SurvivorValue
		case models.ChosenSourceSource:
			d.ChosenValue = diffs[d.FieldName].SourceValue
		case models.ChosenSourceManualValue:
			if d.ChosenValue.IsEmpty() {
				details = append(details, invalid(ferrors.KindInvalidFieldDecision, key, string(d.FieldName), "", "manual value is empty"))
				continue
			}
			coerced, err := d.ChosenValue.Coerce(kind)
			if err != nil {
				details = append(details, invalid(ferrors.KindInvalidFieldDecision, key, string(d.FieldName), "", err.Error()))
				continue
			}
			d.ChosenValue = coerced
		default:
			details = append(details, invalid(ferrors.KindInvalidFieldDecision, key, string(d.FieldName), "", "invalid chosen_source"))
			continue
		}
		session.FieldDecisions = upsertFieldDecision(session.FieldDecisions, d)
	}
	if len(details) > 0 {
		return nil, ValidationFailure(details)
	}

	for _, d := range offeringDecisions {
		if d.TargetOfferingID != nil && *d.TargetOfferingID == "" {
			d.TargetOfferingID = nil
		}
		session.OfferingDecisions = upsertOfferingDecision(session.OfferingDecisions, d)
	}

	session.ValidationErrors = nil
	session.UpdatedAt = o.now()
	if err := o.sessions.Save(ctx, session); err != nil {
		return nil, err
	}
	metrics.RecordSessionTransition(string(session.State))

	return session, nil
}

// ValidateMerge checks the session's decisions against the current vendor graphs.
// The session's snapshot (vendor versions, differences, collisions) is refreshed from
// those graphs, so fields that started to differ since the proposal need a decision.
// On success the session moves to validated; otherwise it stays in decisions_pending
// with the listed problems and the aggregated error is returned.
func (o *Orchestrator) ValidateMerge(ctx context.Context, sessionID string) (*models.MergeSession, error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Orchestrator.ValidateMerge")
	defer span.End()

	session, err := o.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(session.State, models.MergeStateValidated) {
		return nil, ferrors.Newf(ferrors.KindInvalidSessionState, "merge session %s cannot be validated from %s", session.ID, session.State)
	}

	survivor, source, err := o.loadGraphs(ctx, session.Candidate)
	if err != nil {
		return nil, err
	}

	refreshSnapshot(o.matrix, session, survivor, source)

	details := Validate(survivor, source, session.FieldDecisions, session.OfferingDecisions)
	next := models.MergeStateValidated
	if len(details) > 0 {
		next = models.MergeStateDecisionsPending
	}
	if err := transition(session, next); err != nil {
		return nil, err
	}
	session.ValidationErrors = details
	session.UpdatedAt = o.now()
	if err := o.sessions.Save(ctx, session); err != nil {
		return nil, err
	}
	metrics.RecordSessionTransition(string(session.State))

	if len(details) > 0 {
		o.logger.WithContext(ctx).WithFields(map[string]any{
			"session_id": session.ID,
			"problems":   len(details),
		}).Info("Merge validation failed")
		return session, ValidationFailure(details)
	}
	return session, nil
}

// AbandonMerge discards a session that has not started executing. Nothing persisted changes.
func (o *Orchestrator) AbandonMerge(ctx context.Context, sessionID string) error {
	ctx, span := tracing.StartSpan(ctx, "merging.Orchestrator.AbandonMerge")
	defer span.End()

	session, err := o.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := transition(session, models.MergeStateAbandoned); err != nil {
		return err
	}
	if err := o.sessions.Delete(ctx, session.ID); err != nil {
		return err
	}
	metrics.RecordSessionTransition(string(session.State))

	o.logger.WithContext(ctx).WithField("session_id", session.ID).Info("Merge abandoned")
	return nil
}

func (o *Orchestrator) loadGraphs(ctx context.Context, candidate models.MergeCandidate) (models.EntityGraph, models.EntityGraph, error) {
	survivor, err := o.store.GetEntityGraph(ctx, candidate.SurvivorVendorID)
	if err != nil {
		return models.EntityGraph{}, models.EntityGraph{}, err
	}
	source, err := o.store.GetEntityGraph(ctx, candidate.SourceVendorID)
	if err != nil {
		return models.EntityGraph{}, models.EntityGraph{}, err
	}
	return survivor, source, nil
}

// refreshSnapshot points the session at the vendors as they are now. Survivor and source
// choices pick up the current values; manual values are kept as entered.
func refreshSnapshot(matrix *ownership.Matrix, session *models.MergeSession, survivor, source models.EntityGraph) {
	session.SurvivorVersion = survivor.Vendor.Version
	session.SourceVersion = source.Vendor.Version
	session.Differences = Differences(matrix, survivor.Vendor, source.Vendor)
	session.Collisions = Collisions(survivor, source)

	for i, d := range session.FieldDecisions {
		switch d.ChosenSource {
		case models.ChosenSourceSurvivor:
			session.FieldDecisions[i].ChosenValue = survivor.Vendor.Value(d.FieldName)
		case models.ChosenSourceSource:
			session.FieldDecisions[i].ChosenValue = source.Vendor.Value(d.FieldName)
		}
	}
}

func upsertFieldDecision(decisions []models.FieldMergeDecision, d models.FieldMergeDecision) []models.FieldMergeDecision {
	for i := range decisions {
		if decisions[i].FieldName == d.FieldName {
			decisions[i] = d
			return decisions
		}
	}
	return append(decisions, d)
}

func upsertOfferingDecision(decisions []models.OfferingCollisionDecision, d models.OfferingCollisionDecision) []models.OfferingCollisionDecision {
	for i := range decisions {
		if decisions[i].SourceOfferingID == d.SourceOfferingID {
			decisions[i] = d
			return decisions
		}
	}
	return append(decisions, d)
}
