package merging

import (
	"slices"

	ferrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
)

// executing falls back to validated only when the row locks could not be taken and nothing was attempted
var transitions = map[models.MergeState][]models.MergeState{
	models.MergeStateCandidateProposed: {models.MergeStateDecisionsPending, models.MergeStateValidated, models.MergeStateAbandoned},
	models.MergeStateDecisionsPending:  {models.MergeStateDecisionsPending, models.MergeStateValidated, models.MergeStateAbandoned},
	models.MergeStateValidated:         {models.MergeStateDecisionsPending, models.MergeStateValidated, models.MergeStateExecuting, models.MergeStateAbandoned},
	models.MergeStateExecuting:         {models.MergeStateCommitted, models.MergeStateFailed, models.MergeStateValidated},
	models.MergeStateFailed:            {models.MergeStateDecisionsPending, models.MergeStateValidated, models.MergeStateAbandoned},
}

// CanTransition reports whether a session may move from one state to another
func CanTransition(from, to models.MergeState) bool {
	return slices.Contains(transitions[from], to)
}

func transition(session *models.MergeSession, to models.MergeState) error {
	if !CanTransition(session.State, to) {
		return ferrors.Newf(ferrors.KindInvalidSessionState, "merge session %s cannot move from %s to %s", session.ID, session.State, to)
	}
	session.State = to
	return nil
}
