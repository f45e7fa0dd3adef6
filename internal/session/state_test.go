package session

import (
	"errors"
	"testing"
	"time"

	"github.com/oneset-labs/onesetd/internal/domain"
)

func testSession() domain.Session {
	return domain.Session{
		ID:             "sess-1",
		UserAddress:    "0xabc",
		Balance:        50_000_000,
		InitialDeposit: 50_000_000,
		StartTime:      time.Now().UTC(),
		Duration:       30 * time.Minute,
	}
}

func TestDebitRejectsOverdraw(t *testing.T) {
	st := NewState(testSession())

	if err := st.Debit(60_000_000); !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if got := st.Snapshot().Balance; got != 50_000_000 {
		t.Fatalf("balance changed on failed debit: %d", got)
	}
	t.Logf("Correctly blocked overdraw: balance stays %d", st.Snapshot().Balance)
}

func TestApplyRealizedClampsAtZero(t *testing.T) {
	st := NewState(testSession())

	st.ApplyRealized(-80_000_000)
	if got := st.Snapshot().Balance; got != 0 {
		t.Fatalf("balance should clamp at zero, got %d", got)
	}
}

func TestNextNonceStrictlyIncreasing(t *testing.T) {
	st := NewState(testSession())

	prev := uint64(0)
	for i := 0; i < 100; i++ {
		n := st.NextNonce()
		if n <= prev {
			t.Fatalf("nonce %d not greater than previous %d", n, prev)
		}
		prev = n
	}
}

func TestOpenPositionRejectsZeroEntry(t *testing.T) {
	st := NewState(testSession())

	err := st.OpenPosition(domain.Position{ID: "p1", Side: domain.SideLong, Entry: 0})
	if !errors.Is(err, domain.ErrZeroEntryPrice) {
		t.Fatalf("expected ErrZeroEntryPrice, got %v", err)
	}
}

func TestPositionsNewestFirst(t *testing.T) {
	st := NewState(testSession())

	for _, id := range []string{"p1", "p2", "p3"} {
		if err := st.OpenPosition(domain.Position{ID: id, Side: domain.SideLong, Entry: 100}); err != nil {
			t.Fatalf("open %s: %v", id, err)
		}
	}
	ps := st.Positions()
	if len(ps) != 3 {
		t.Fatalf("expected 3 positions, got %d", len(ps))
	}
	if ps[0].ID != "p3" || ps[2].ID != "p1" {
		t.Fatalf("positions not newest-first: %s, %s, %s", ps[0].ID, ps[1].ID, ps[2].ID)
	}
}

func TestMarkPriceRecomputesPnL(t *testing.T) {
	st := NewState(testSession())

	btc, err := domain.MarketBySymbol("BTC")
	if err != nil {
		t.Fatalf("market: %v", err)
	}
	if err := st.OpenPosition(domain.Position{
		ID: "p1", Market: btc, Side: domain.SideShort, Entry: 100, Current: 100,
	}); err != nil {
		t.Fatalf("open: %v", err)
	}

	st.MarkPrice("BTC", 98)

	pos, err := st.Position("p1")
	if err != nil {
		t.Fatalf("position: %v", err)
	}
	if pos.PnL != 2 {
		t.Fatalf("short 100→98 should be +2, got %v", pos.PnL)
	}
	if pos.PnLPercent != 2 {
		t.Fatalf("expected +2%%, got %v", pos.PnLPercent)
	}
}

func TestBeginSettlementIsOneShot(t *testing.T) {
	st := NewState(testSession())

	if err := st.BeginSettlement(); err != nil {
		t.Fatalf("first begin: %v", err)
	}
	if err := st.BeginSettlement(); !errors.Is(err, domain.ErrSettlementPending) {
		t.Fatalf("expected ErrSettlementPending on second begin, got %v", err)
	}
	st.AbortSettlement()
	if err := st.BeginSettlement(); err != nil {
		t.Fatalf("begin after abort: %v", err)
	}
}

func TestExpired(t *testing.T) {
	s := testSession()
	s.StartTime = time.Now().UTC().Add(-time.Hour)
	s.Duration = 30 * time.Minute
	st := NewState(s)

	if !st.Expired(time.Now().UTC()) {
		t.Fatal("session past its duration should report expired")
	}
	if got := st.Snapshot().Remaining(time.Now().UTC()); got != 0 {
		t.Fatalf("remaining should clamp at zero, got %v", got)
	}
}
