package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/oneset-labs/onesetd/internal/domain"
)

// Narrow store interfaces required by the archiver. The Postgres stores
// satisfy these implicitly through their time-ranged query methods.

// SessionArchiveStore provides read access to settled sessions for archival.
type SessionArchiveStore interface {
	// ListSettledBefore returns all sessions settled strictly before the
	// given cutoff time.
	ListSettledBefore(ctx context.Context, before time.Time) ([]domain.Session, error)
}

// ArchiveWriter is the streaming upload surface the archiver needs. The S3
// Writer satisfies it via the concurrent upload manager, since monthly
// archive files can outgrow a single PutObject.
type ArchiveWriter interface {
	PutStream(ctx context.Context, path string, data io.Reader, contentType string) error
}

// TradeArchiveStore provides read access to closed trades for archival.
type TradeArchiveStore interface {
	// ListClosedBefore returns all trades closed strictly before the given
	// cutoff time.
	ListClosedBefore(ctx context.Context, before time.Time) ([]domain.TradeRecord, error)
}

// Archiver exports settled sessions and their trade history to object
// storage as JSONL, partitioned by month. Deletion of archived rows from the
// primary store is intentionally NOT performed here; that is a separate,
// explicit step to be executed after the archive has been verified.
type Archiver struct {
	writer   ArchiveWriter
	sessions SessionArchiveStore
	trades   TradeArchiveStore
	audit    domain.AuditStore
}

// NewArchiver creates an Archiver.
func NewArchiver(
	writer ArchiveWriter,
	sessions SessionArchiveStore,
	trades TradeArchiveStore,
	audit domain.AuditStore,
) *Archiver {
	return &Archiver{
		writer:   writer,
		sessions: sessions,
		trades:   trades,
		audit:    audit,
	}
}

// ArchiveSessions queries all sessions settled before the cutoff, serializes
// them to JSONL, and uploads the file to archive/sessions/YYYY-MM.jsonl. The
// archival event is recorded in the audit log and the count of archived
// records is returned.
func (a *Archiver) ArchiveSessions(ctx context.Context, before time.Time) (int64, error) {
	sessions, err := a.sessions.ListSettledBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive sessions query: %w", err)
	}
	if len(sessions) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(sessions)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive sessions marshal: %w", err)
	}

	path := archivePath("sessions", before)
	if err := a.writer.PutStream(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive sessions upload: %w", err)
	}

	count := int64(len(sessions))

	if err := a.audit.Log(ctx, "archive.sessions", map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive sessions audit log: %w", err)
	}

	return count, nil
}

// ArchiveTrades queries all trades closed before the cutoff, serializes them
// to JSONL, and uploads the file to archive/trades/YYYY-MM.jsonl.
func (a *Archiver) ArchiveTrades(ctx context.Context, before time.Time) (int64, error) {
	trades, err := a.trades.ListClosedBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades query: %w", err)
	}
	if len(trades) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(trades)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades marshal: %w", err)
	}

	path := archivePath("trades", before)
	if err := a.writer.PutStream(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive trades upload: %w", err)
	}

	count := int64(len(trades))

	if err := a.audit.Log(ctx, "archive.trades", map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive trades audit log: %w", err)
	}

	return count, nil
}

// archivePath builds the object key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/sessions/2025-01.jsonl
//	archive/trades/2025-01.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
