package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/openarb/venuewatch/internal/domain"
)

// multipartThreshold is the payload size above which the archiver switches
// from a single PutObject to a multipart upload.
const multipartThreshold = 8 * 1024 * 1024

// ArchiveImpl implements domain.Archiver by querying the stores for aged
// records, serializing them to JSONL, uploading the result to S3, and only
// then deleting the archived rows. A row is never deleted before its archive
// object has been verified present.
type ArchiveImpl struct {
	writer        *Writer
	reader        *Reader
	opportunities domain.OpportunityStore
	alerts        domain.AlertStore
	logger        *slog.Logger
}

// NewArchiver creates an ArchiveImpl over the given stores.
func NewArchiver(
	writer *Writer,
	reader *Reader,
	opportunities domain.OpportunityStore,
	alerts domain.AlertStore,
	logger *slog.Logger,
) *ArchiveImpl {
	return &ArchiveImpl{
		writer:        writer,
		reader:        reader,
		opportunities: opportunities,
		alerts:        alerts,
		logger:        logger.With(slog.String("component", "archiver")),
	}
}

var _ domain.Archiver = (*ArchiveImpl)(nil)

// ArchiveOpportunities archives all opportunities detected before the cutoff
// to archive/opportunities/YYYY-MM.jsonl, then deletes the archived rows.
// Returns the number of records archived.
func (a *ArchiveImpl) ArchiveOpportunities(ctx context.Context, before time.Time) (int64, error) {
	opps, err := a.opportunities.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive opportunities query: %w", err)
	}
	if len(opps) == 0 {
		return 0, nil
	}

	path := archivePath("opportunities", before)
	if err := a.upload(ctx, path, opps); err != nil {
		return 0, err
	}

	deleted, err := a.opportunities.DeleteBefore(ctx, before)
	if err != nil {
		return int64(len(opps)), fmt.Errorf("s3blob: archive opportunities prune: %w", err)
	}

	a.logger.Info("archived opportunities",
		slog.String("path", path),
		slog.Int("archived", len(opps)),
		slog.Int64("deleted", deleted),
	)
	return int64(len(opps)), nil
}

// ArchiveAlerts archives all liquidity alerts created before the cutoff to
// archive/alerts/YYYY-MM.jsonl, then deletes the archived rows. Returns the
// number of records archived.
func (a *ArchiveImpl) ArchiveAlerts(ctx context.Context, before time.Time) (int64, error) {
	alerts, err := a.alerts.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive alerts query: %w", err)
	}
	if len(alerts) == 0 {
		return 0, nil
	}

	path := archivePath("alerts", before)
	if err := a.upload(ctx, path, alerts); err != nil {
		return 0, err
	}

	deleted, err := a.alerts.DeleteBefore(ctx, before)
	if err != nil {
		return int64(len(alerts)), fmt.Errorf("s3blob: archive alerts prune: %w", err)
	}

	a.logger.Info("archived alerts",
		slog.String("path", path),
		slog.Int("archived", len(alerts)),
		slog.Int64("deleted", deleted),
	)
	return int64(len(alerts)), nil
}

// upload serializes records to JSONL, uploads them, and verifies the object
// exists before returning.
func (a *ArchiveImpl) upload(ctx context.Context, path string, records any) error {
	buf, err := marshalJSONL(records)
	if err != nil {
		return fmt.Errorf("s3blob: archive marshal %s: %w", path, err)
	}

	if int64(len(buf)) > multipartThreshold {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), int64(len(buf))/4)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
	}
	if err != nil {
		return fmt.Errorf("s3blob: archive upload %s: %w", path, err)
	}

	exists, err := a.reader.Exists(ctx, path)
	if err != nil {
		return fmt.Errorf("s3blob: archive verify %s: %w", path, err)
	}
	if !exists {
		return fmt.Errorf("s3blob: archive verify %s: object missing after upload", path)
	}
	return nil
}

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/opportunities/2025-01.jsonl
//	archive/alerts/2025-01.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serializes records as newline-delimited JSON, one record per
// line.
func marshalJSONL(records any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)

	switch v := records.(type) {
	case []domain.ArbitrageOpportunity:
		for _, r := range v {
			if err := enc.Encode(r); err != nil {
				return nil, err
			}
		}
	case []domain.LiquidityAlert:
		for _, r := range v {
			if err := enc.Encode(r); err != nil {
				return nil, err
			}
		}
	default:
		return nil, fmt.Errorf("unsupported archive record type %T", records)
	}
	return buf.Bytes(), nil
}
