package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const recordMergeCypher = `
MERGE (src:Vendor {vendor_id: $source_vendor_id})
MERGE (dst:Vendor {vendor_id: $survivor_vendor_id})
SET src.status = 'archived'
MERGE (src)-[m:MERGED_INTO]->(dst)
SET m.execution_id = $execution_id,
    m.actor = $actor,
    m.executed_at = $executed_at
`

const lineageCypher = `
MATCH (src:Vendor)-[:MERGED_INTO*1..]->(:Vendor {vendor_id: $vendor_id})
RETURN DISTINCT src.vendor_id AS vendor_id
ORDER BY vendor_id
`

// RecordMerge writes the (source)-[:MERGED_INTO]->(survivor) edge. Re-recording the same
// execution is a no-op.
func (c *Client) RecordMerge(ctx context.Context, record models.MergeExecutionRecord) error {
	ctx, span := tracing.StartSpan(ctx, "graph.Client.RecordMerge")
	defer span.End()

	_, err := c.executeWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, recordMergeCypher, mergeParams(record))
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})
	if err != nil {
		c.logger.WithContext(ctx).WithError(err).WithField("execution_id", record.ID).Error("Failed to record merge lineage")
		return fmt.Errorf("failed to record merge lineage: %w", err)
	}
	return nil
}

// Lineage returns every vendor merged, directly or transitively, into vendorID
func (c *Client) Lineage(ctx context.Context, vendorID string) ([]string, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.Client.Lineage")
	defer span.End()

	out, err := c.executeRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, lineageCypher, map[string]any{"vendor_id": vendorID})
		if err != nil {
			return nil, err
		}
		records, err := result.Collect(ctx)
		if err != nil {
			return nil, err
		}
		return vendorIDs(records), nil
	})
	if err != nil {
		c.logger.WithContext(ctx).WithError(err).WithField("vendor_id", vendorID).Error("Failed to read merge lineage")
		return nil, fmt.Errorf("failed to read merge lineage: %w", err)
	}
	return out.([]string), nil
}

func mergeParams(record models.MergeExecutionRecord) map[string]any {
	return map[string]any{
		"source_vendor_id":   record.SourceVendorID,
		"survivor_vendor_id": record.SurvivorVendorID,
		"execution_id":       record.ID,
		"actor":              record.Actor,
		"executed_at":        record.ExecutedAt.UTC().Format(time.RFC3339Nano),
	}
}

func vendorIDs(records []*neo4j.Record) []string {
	ids := make([]string, 0, len(records))
	for _, rec := range records {
		v, ok := rec.Get("vendor_id")
		if !ok {
			continue
		}
		if id, ok := v.(string); ok && id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
