package models

import (
	"time"

	ferrors "github.com/Ramsey-B/fern/pkg/errors"
)

// MergeState is a step of the merge session state machine
type MergeState string

const (
	MergeStateCandidateProposed MergeState = "candidate_proposed"
	MergeStateDecisionsPending  MergeState = "decisions_pending"
	MergeStateValidated         MergeState = "validated"
	MergeStateExecuting         MergeState = "executing"
	MergeStateCommitted         MergeState = "committed"
	MergeStateAbandoned         MergeState = "abandoned"
	MergeStateFailed            MergeState = "failed"
)

// IsTerminal reports whether no further transitions are possible
func (s MergeState) IsTerminal() bool {
	return s == MergeStateCommitted || s == MergeStateAbandoned
}

// MergeSession is the transient state of one human-reviewed merge
type MergeSession struct {
	ID                string                      `json:"id"`
	State             MergeState                  `json:"state"`
	Candidate         MergeCandidate              `json:"candidate"`
	SurvivorVersion   int                         `json:"survivor_version"`
	SourceVersion     int                         `json:"source_version"`
	Differences       []FieldDifference           `json:"differences"`
	Collisions        []OfferingCollision         `json:"collisions"`
	FieldDecisions    []FieldMergeDecision        `json:"field_decisions"`
	OfferingDecisions []OfferingCollisionDecision `json:"offering_decisions"`
	ValidationErrors  []ferrors.ValidationError   `json:"validation_errors,omitempty"`
	LastError         string                      `json:"last_error,omitempty"`
	ExecutionID       string                      `json:"execution_id,omitempty"`
	CreatedBy         string                      `json:"created_by"`
	CreatedAt         time.Time                   `json:"created_at"`
	UpdatedAt         time.Time                   `json:"updated_at"`
}
