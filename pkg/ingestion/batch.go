package ingestion

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	ferrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// BatchReport aggregates a batch. Results keep the input order.
type BatchReport struct {
	SourceSystem          string                            `json:"source_system"`
	Total                 int                               `json:"total"`
	Outcomes              map[Outcome]int                   `json:"outcomes"`
	ErrorsByKind          map[ferrors.Kind]int              `json:"errors_by_kind"`
	ConflictsByResolution map[models.ConflictResolution]int `json:"conflicts_by_resolution"`
	Results               []Result                          `json:"results"`
	Duration              time.Duration                     `json:"duration_ns"`
}

// IngestBatch ingests records in parallel, bounded by the configured worker count. A failing
// record never stops the batch; its error is reported in its result.
func (s *Service) IngestBatch(ctx context.Context, sourceSystem string, records []map[string]any) BatchReport {
	ctx, span := tracing.StartSpan(ctx, "ingestion.Service.IngestBatch")
	defer span.End()

	start := time.Now()
	results := make([]Result, len(records))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for i, raw := range records {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				results[i] = Result{
					SourceSystem: sourceSystem,
					Outcome:      OutcomeFailed,
					Conflicts:    []models.MergeConflict{},
					ErrorKind:    ferrors.KindStoreFailure,
					Error:        err.Error(),
				}
				return nil
			}
			results[i], _ = s.Ingest(gctx, sourceSystem, raw)
			return nil
		})
	}
	_ = g.Wait()

	report := NewBatchReport(sourceSystem, results)
	report.Duration = time.Since(start)
	metrics.RecordIngestionBatch(sourceSystem, report.Duration.Seconds())

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"source_system": sourceSystem,
		"total":         report.Total,
		"created":       report.Outcomes[OutcomeCreated],
		"updated":       report.Outcomes[OutcomeUpdated],
		"unchanged":     report.Outcomes[OutcomeUnchanged],
		"failed":        report.Outcomes[OutcomeFailed],
		"duration_ms":   report.Duration.Milliseconds(),
	}).Info("Ingestion batch complete")

	return report
}

// NewBatchReport tallies per-record results
func NewBatchReport(sourceSystem string, results []Result) BatchReport {
	report := BatchReport{
		SourceSystem:          sourceSystem,
		Total:                 len(results),
		Outcomes:              map[Outcome]int{},
		ErrorsByKind:          map[ferrors.Kind]int{},
		ConflictsByResolution: map[models.ConflictResolution]int{},
		Results:               results,
	}
	for _, r := range results {
		report.Outcomes[r.Outcome]++
		if r.Outcome == OutcomeFailed {
			report.ErrorsByKind[r.ErrorKind]++
		}
		for _, c := range r.Conflicts {
			report.ConflictsByResolution[c.Resolution]++
		}
	}
	return report
}
