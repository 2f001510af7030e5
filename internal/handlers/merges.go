package handlers

import (
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/merging"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/utils"
)

// MergeHandler drives duplicate merge sessions
type MergeHandler struct {
	orchestrator *merging.Orchestrator
	logger       ectologger.Logger
}

func NewMergeHandler(orchestrator *merging.Orchestrator, logger ectologger.Logger) *MergeHandler {
	return &MergeHandler{orchestrator: orchestrator, logger: logger}
}

type DecisionsRequest struct {
	FieldDecisions    []models.FieldMergeDecision        `json:"field_decisions"`
	OfferingDecisions []models.OfferingCollisionDecision `json:"offering_decisions"`
}

// Propose opens a merge session for a duplicate pair
// POST /api/v1/merges
func (h *MergeHandler) Propose(c echo.Context) error {
	if _, err := RequireActor(c); err != nil {
		return err
	}

	candidate, err := utils.BindRequest[models.MergeCandidate](c)
	if err != nil {
		return err
	}

	session, err := h.orchestrator.ProposeMerge(c.Request().Context(), candidate)
	if err != nil {
		return err
	}
	return CreatedResponse(c, session)
}

// Get returns a merge session
// GET /api/v1/merges/:id
func (h *MergeHandler) Get(c echo.Context) error {
	sessionID, err := PathParam(c, "id")
	if err != nil {
		return err
	}

	session, err := h.orchestrator.GetSession(c.Request().Context(), sessionID)
	if err != nil {
		return err
	}
	return SuccessResponse(c, session)
}

// SubmitDecisions records field and collision decisions
// PUT /api/v1/merges/:id/decisions
func (h *MergeHandler) SubmitDecisions(c echo.Context) error {
	sessionID, err := PathParam(c, "id")
	if err != nil {
		return err
	}

	req, err := utils.BindRequest[DecisionsRequest](c)
	if err != nil {
		return err
	}

	session, err := h.orchestrator.SubmitDecisions(c.Request().Context(), sessionID, req.FieldDecisions, req.OfferingDecisions)
	if err != nil {
		return err
	}
	return SuccessResponse(c, session)
}

// Validate checks the decisions against fresh vendor state
// POST /api/v1/merges/:id/validate
func (h *MergeHandler) Validate(c echo.Context) error {
	sessionID, err := PathParam(c, "id")
	if err != nil {
		return err
	}

	session, err := h.orchestrator.ValidateMerge(c.Request().Context(), sessionID)
	if err != nil {
		return err
	}
	return SuccessResponse(c, session)
}

// Execute commits the merge
// POST /api/v1/merges/:id/execute
func (h *MergeHandler) Execute(c echo.Context) error {
	ctx := c.Request().Context()
	actor, err := RequireActor(c)
	if err != nil {
		return err
	}
	sessionID, err := PathParam(c, "id")
	if err != nil {
		return err
	}

	record, err := h.orchestrator.ExecuteMerge(ctx, sessionID, actor)
	if err != nil {
		return err
	}

	h.logger.WithContext(ctx).WithFields(map[string]any{
		"session_id":         sessionID,
		"execution_id":       record.ID,
		"survivor_vendor_id": record.SurvivorVendorID,
		"source_vendor_id":   record.SourceVendorID,
	}).Info("Merge executed")

	return SuccessResponse(c, record)
}

// Abandon discards a merge session
// DELETE /api/v1/merges/:id
func (h *MergeHandler) Abandon(c echo.Context) error {
	sessionID, err := PathParam(c, "id")
	if err != nil {
		return err
	}

	if err := h.orchestrator.AbandonMerge(c.Request().Context(), sessionID); err != nil {
		return err
	}
	return NoContentResponse(c)
}
