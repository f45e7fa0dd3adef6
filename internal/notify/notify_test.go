package notify

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/oneset-labs/onesetd/internal/domain"
)

type recordingSender struct {
	titles   []string
	messages []string
}

func (r *recordingSender) Send(_ context.Context, title, message string) error {
	r.titles = append(r.titles, title)
	r.messages = append(r.messages, message)
	return nil
}

func (r *recordingSender) Name() string { return "recording" }

func TestNotifyFiltersByEvent(t *testing.T) {
	sender := &recordingSender{}
	n := NewNotifier([]Sender{sender}, []string{EventSessionSettled}, slog.New(slog.DiscardHandler))

	if err := n.SessionCreated(context.Background(), domain.Session{UserAddress: "0xabc"}); err != nil {
		t.Fatalf("SessionCreated: %v", err)
	}
	if len(sender.titles) != 0 {
		t.Fatalf("expected filtered event, got %v", sender.titles)
	}

	err := n.SessionSettled(context.Background(), "sess-1", domain.SettlementSummary{
		StartingBalance: 50, FinalBalance: 52.47, PnL: 2.47, PnLPercent: 4.94,
		TradesExecuted: 7, GasSaved: "$14.00", TransactionHash: "0xdead",
	})
	if err != nil {
		t.Fatalf("SessionSettled: %v", err)
	}
	if len(sender.titles) != 1 || sender.titles[0] != "Session settled" {
		t.Fatalf("expected settled notification, got %v", sender.titles)
	}
}

func TestNotifyAllBypassesFilter(t *testing.T) {
	sender := &recordingSender{}
	n := NewNotifier([]Sender{sender}, []string{EventSessionSettled}, slog.New(slog.DiscardHandler))

	if err := n.NotifyAll(context.Background(), "Manual", "hello"); err != nil {
		t.Fatalf("NotifyAll: %v", err)
	}
	if len(sender.titles) != 1 {
		t.Fatalf("expected one notification, got %d", len(sender.titles))
	}
}

func TestSessionExpiredMessage(t *testing.T) {
	sender := &recordingSender{}
	n := NewNotifier([]Sender{sender}, nil, slog.New(slog.DiscardHandler))

	sess := domain.Session{
		ID:          "sess-1",
		UserAddress: "0x1234567890abcdef1234567890abcdef12345678",
		Duration:    30 * time.Minute,
		Positions:   []domain.Position{{ID: "pos-1"}},
	}
	if err := n.SessionExpired(context.Background(), sess); err != nil {
		t.Fatalf("SessionExpired: %v", err)
	}
	if len(sender.messages) != 1 {
		t.Fatalf("expected one message, got %d", len(sender.messages))
	}
	msg := sender.messages[0]
	if want := "0x1234...5678"; !strings.Contains(msg, want) {
		t.Errorf("expected abbreviated address %q in %q", want, msg)
	}
	if want := "1 open position(s)"; !strings.Contains(msg, want) {
		t.Errorf("expected %q in %q", want, msg)
	}
}
