package ingestion

import (
	"context"
	"fmt"

	fcontext "github.com/Ramsey-B/fern/pkg/context"
	ferrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/kafka"
)

// HandleMessage ingests one record from the source record topic. Records that can never be
// ingested are reported as permanent so the consumer commits past them.
func (s *Service) HandleMessage(ctx context.Context, msg *kafka.Message) error {
	rec, err := msg.ParseSourceRecord()
	if err != nil {
		return fmt.Errorf("%w: %v", kafka.ErrPermanent, err)
	}
	if requestID := msg.Headers[kafka.HeaderRequestID]; requestID != "" {
		ctx = fcontext.SetRequestID(ctx, requestID)
	}

	_, err = s.Ingest(ctx, rec.SourceSystem, rec.Record)
	switch ferrors.KindOf(err) {
	case ferrors.KindMalformedSourceRecord, ferrors.KindUnknownField, ferrors.KindArchivedVendor:
		return fmt.Errorf("%w: %v", kafka.ErrPermanent, err)
	}
	return err
}
