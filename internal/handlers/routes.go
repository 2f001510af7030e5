package handlers

import (
	"github.com/labstack/echo/v4"
)

// Handlers groups the API surface mounted under /api/v1
type Handlers struct {
	Ingestion *IngestionHandler
	Vendors   *VendorHandler
	Merges    *MergeHandler
}

func (h Handlers) Register(e *echo.Echo) {
	api := e.Group("/api/v1")

	ingest := api.Group("/ingestion/:source")
	ingest.POST("/records", h.Ingestion.Ingest)
	ingest.POST("/batches", h.Ingestion.IngestBatch)
	ingest.POST("/preview", h.Ingestion.Preview)

	vendors := api.Group("/vendors/:id")
	vendors.GET("", h.Vendors.Get)
	vendors.PUT("/overrides/:field", h.Vendors.SetOverride)
	vendors.DELETE("/overrides/:field", h.Vendors.ClearOverride)
	vendors.GET("/merges", h.Vendors.MergeHistory)
	vendors.GET("/lineage", h.Vendors.Lineage)

	merges := api.Group("/merges")
	merges.POST("", h.Merges.Propose)
	merges.GET("/:id", h.Merges.Get)
	merges.PUT("/:id/decisions", h.Merges.SubmitDecisions)
	merges.POST("/:id/validate", h.Merges.Validate)
	merges.POST("/:id/execute", h.Merges.Execute)
	merges.DELETE("/:id", h.Merges.Abandon)
}
