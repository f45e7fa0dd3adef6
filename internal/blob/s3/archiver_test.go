package s3blob

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/oneset-labs/onesetd/internal/domain"
)

type fakeBlobWriter struct {
	path        string
	data        []byte
	contentType string
	puts        int
}

func (f *fakeBlobWriter) PutStream(_ context.Context, path string, data io.Reader, contentType string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.path = path
	f.data = b
	f.contentType = contentType
	f.puts++
	return nil
}

type fakeSessionArchive struct {
	sessions []domain.Session
}

func (f *fakeSessionArchive) ListSettledBefore(context.Context, time.Time) ([]domain.Session, error) {
	return f.sessions, nil
}

type fakeTradeArchive struct {
	trades []domain.TradeRecord
}

func (f *fakeTradeArchive) ListClosedBefore(context.Context, time.Time) ([]domain.TradeRecord, error) {
	return f.trades, nil
}

type fakeAudit struct {
	events []string
}

func (f *fakeAudit) Log(_ context.Context, event string, _ map[string]any) error {
	f.events = append(f.events, event)
	return nil
}

func (f *fakeAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

func TestArchiveSessionsWritesJSONL(t *testing.T) {
	settled := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	writer := &fakeBlobWriter{}
	audit := &fakeAudit{}
	arch := NewArchiver(writer,
		&fakeSessionArchive{sessions: []domain.Session{
			{ID: "sess-1", UserAddress: "0xabc", SettledAt: &settled},
			{ID: "sess-2", UserAddress: "0xdef", SettledAt: &settled},
		}},
		&fakeTradeArchive{},
		audit,
	)

	cutoff := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	count, err := arch.ArchiveSessions(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("ArchiveSessions: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 archived sessions, got %d", count)
	}
	if writer.path != "archive/sessions/2025-02.jsonl" {
		t.Errorf("unexpected archive path %q", writer.path)
	}
	if writer.contentType != "application/x-ndjson" {
		t.Errorf("unexpected content type %q", writer.contentType)
	}
	lines := strings.Split(strings.TrimRight(string(writer.data), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 JSONL lines, got %d", len(lines))
	}
	if !strings.Contains(lines[0], `"sess-1"`) {
		t.Errorf("first line missing session id: %s", lines[0])
	}
	if len(audit.events) != 1 || audit.events[0] != "archive.sessions" {
		t.Errorf("unexpected audit events %v", audit.events)
	}
}

func TestArchiveSkipsUploadWhenEmpty(t *testing.T) {
	writer := &fakeBlobWriter{}
	arch := NewArchiver(writer, &fakeSessionArchive{}, &fakeTradeArchive{}, &fakeAudit{})

	count, err := arch.ArchiveTrades(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("ArchiveTrades: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 archived trades, got %d", count)
	}
	if writer.puts != 0 {
		t.Errorf("expected no uploads for empty result, got %d", writer.puts)
	}
}

func TestArchiveTradesPath(t *testing.T) {
	closed := time.Date(2025, 3, 5, 12, 0, 0, 0, time.UTC)
	writer := &fakeBlobWriter{}
	arch := NewArchiver(writer, &fakeSessionArchive{},
		&fakeTradeArchive{trades: []domain.TradeRecord{
			{ID: "t-1", SessionID: "sess-1", MarketID: "BTC", Side: domain.SideLong, ClosedAt: &closed},
		}},
		&fakeAudit{},
	)

	count, err := arch.ArchiveTrades(context.Background(), time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("ArchiveTrades: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 archived trade, got %d", count)
	}
	if writer.path != "archive/trades/2025-04.jsonl" {
		t.Errorf("unexpected archive path %q", writer.path)
	}
}
