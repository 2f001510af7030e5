package handlers

import (
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/utils"
	"github.com/Ramsey-B/fern/pkg/vendors"
)

// VendorHandler serves canonical vendor reads and field stewardship
type VendorHandler struct {
	service *vendors.Service
	logger  ectologger.Logger
}

func NewVendorHandler(service *vendors.Service, logger ectologger.Logger) *VendorHandler {
	return &VendorHandler{service: service, logger: logger}
}

type OverrideRequest struct {
	Value           models.Value `json:"value"`
	ExpectedVersion int          `json:"expected_version" validate:"gte=0"`
}

type ClearOverrideRequest struct {
	ExpectedVersion int `query:"expected_version" validate:"gte=0"`
}

type LineageResponse struct {
	VendorID      string   `json:"vendor_id"`
	MergedVendors []string `json:"merged_vendor_ids"`
}

// Get returns the canonical record and its natural keys
// GET /api/v1/vendors/:id
func (h *VendorHandler) Get(c echo.Context) error {
	vendorID, err := PathParam(c, "id")
	if err != nil {
		return err
	}

	view, err := h.service.Get(c.Request().Context(), vendorID)
	if err != nil {
		return err
	}
	return SuccessResponse(c, view)
}

// SetOverride pins a field to a human value
// PUT /api/v1/vendors/:id/overrides/:field
func (h *VendorHandler) SetOverride(c echo.Context) error {
	vendorID, field, actor, err := overrideTarget(c)
	if err != nil {
		return err
	}

	req, err := utils.BindRequest[OverrideRequest](c)
	if err != nil {
		return err
	}

	vendor, err := h.service.SetFieldOverride(c.Request().Context(), vendorID, field, req.Value, actor, req.ExpectedVersion)
	if err != nil {
		return err
	}
	return SuccessResponse(c, vendor)
}

// ClearOverride releases a field back to source priority
// DELETE /api/v1/vendors/:id/overrides/:field
func (h *VendorHandler) ClearOverride(c echo.Context) error {
	vendorID, field, actor, err := overrideTarget(c)
	if err != nil {
		return err
	}

	req, err := utils.BindRequest[ClearOverrideRequest](c)
	if err != nil {
		return err
	}

	vendor, err := h.service.ClearFieldOverride(c.Request().Context(), vendorID, field, actor, req.ExpectedVersion)
	if err != nil {
		return err
	}
	return SuccessResponse(c, vendor)
}

// MergeHistory lists committed merges the vendor took part in
// GET /api/v1/vendors/:id/merges
func (h *VendorHandler) MergeHistory(c echo.Context) error {
	vendorID, err := PathParam(c, "id")
	if err != nil {
		return err
	}

	records, err := h.service.MergeHistory(c.Request().Context(), vendorID)
	if err != nil {
		return err
	}
	if records == nil {
		records = []models.MergeExecutionRecord{}
	}
	return SuccessResponse(c, records)
}

// Lineage lists every vendor merged, directly or transitively, into this one
// GET /api/v1/vendors/:id/lineage
func (h *VendorHandler) Lineage(c echo.Context) error {
	vendorID, err := PathParam(c, "id")
	if err != nil {
		return err
	}

	ids, err := h.service.Lineage(c.Request().Context(), vendorID)
	if err != nil {
		return err
	}
	if ids == nil {
		ids = []string{}
	}
	return SuccessResponse(c, LineageResponse{VendorID: vendorID, MergedVendors: ids})
}

func overrideTarget(c echo.Context) (string, models.FieldName, string, error) {
	vendorID, err := PathParam(c, "id")
	if err != nil {
		return "", "", "", err
	}
	field, err := PathParam(c, "field")
	if err != nil {
		return "", "", "", err
	}
	actor, err := RequireActor(c)
	if err != nil {
		return "", "", "", err
	}
	return vendorID, models.FieldName(field), actor, nil
}
