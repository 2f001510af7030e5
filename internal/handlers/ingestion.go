package handlers

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/ingestion"
	"github.com/Ramsey-B/fern/pkg/utils"
)

// IngestionHandler accepts source-system records over HTTP
type IngestionHandler struct {
	service *ingestion.Service
	logger  ectologger.Logger
}

func NewIngestionHandler(service *ingestion.Service, logger ectologger.Logger) *IngestionHandler {
	return &IngestionHandler{service: service, logger: logger}
}

type BatchRequest struct {
	Records []map[string]any `json:"records" validate:"required,min=1,max=5000"`
}

// Ingest resolves a single record
// POST /api/v1/ingestion/:source/records
func (h *IngestionHandler) Ingest(c echo.Context) error {
	source, raw, err := h.bindRecord(c)
	if err != nil {
		return err
	}

	result, err := h.service.Ingest(c.Request().Context(), source, raw)
	if err != nil {
		return err
	}
	if result.Outcome == ingestion.OutcomeCreated {
		return CreatedResponse(c, result)
	}
	return SuccessResponse(c, result)
}

// IngestBatch resolves many records and reports per-record outcomes
// POST /api/v1/ingestion/:source/batches
func (h *IngestionHandler) IngestBatch(c echo.Context) error {
	ctx := c.Request().Context()
	source, err := PathParam(c, "source")
	if err != nil {
		return err
	}

	req, err := utils.BindRequest[BatchRequest](c)
	if err != nil {
		return err
	}

	report := h.service.IngestBatch(ctx, source, req.Records)
	h.logger.WithContext(ctx).WithFields(map[string]any{
		"source_system": source,
		"total":         report.Total,
		"failed":        report.Outcomes[ingestion.OutcomeFailed],
	}).Info("Ingested batch")

	return SuccessResponse(c, report)
}

// Preview shows what a record would change without writing it
// POST /api/v1/ingestion/:source/preview
func (h *IngestionHandler) Preview(c echo.Context) error {
	source, raw, err := h.bindRecord(c)
	if err != nil {
		return err
	}

	result, err := h.service.Preview(c.Request().Context(), source, raw)
	if err != nil {
		return err
	}
	return SuccessResponse(c, result)
}

func (h *IngestionHandler) bindRecord(c echo.Context) (string, map[string]any, error) {
	source, err := PathParam(c, "source")
	if err != nil {
		return "", nil, err
	}

	// BindBody only: path params must not leak into the record
	var raw map[string]any
	if err := (&echo.DefaultBinder{}).BindBody(c, &raw); err != nil {
		return "", nil, httperror.WrapError(http.StatusBadRequest, err)
	}
	if len(raw) == 0 {
		return "", nil, httperror.NewHTTPError(http.StatusBadRequest, "record body is required")
	}
	return source, raw, nil
}
