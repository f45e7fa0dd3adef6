package oracle

import (
	"errors"
	"math"
	"testing"

	"github.com/oneset-labs/onesetd/internal/domain"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestCalculatePnL_Long(t *testing.T) {
	got, err := CalculatePnL(100, 103, domain.SideLong)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !almostEqual(got.Abs, 3) {
		t.Fatalf("expected pnl 3, got %g", got.Abs)
	}
	if !almostEqual(got.Percent, 3) {
		t.Fatalf("expected 3%%, got %g", got.Percent)
	}
}

func TestCalculatePnL_Short(t *testing.T) {
	got, err := CalculatePnL(100, 103, domain.SideShort)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !almostEqual(got.Abs, -3) {
		t.Fatalf("expected pnl -3, got %g", got.Abs)
	}
	if !almostEqual(got.Percent, -3) {
		t.Fatalf("expected -3%%, got %g", got.Percent)
	}
}

func TestCalculatePnL_ShortProfit(t *testing.T) {
	got, err := CalculatePnL(200, 190, domain.SideShort)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !almostEqual(got.Abs, 10) {
		t.Fatalf("expected pnl 10, got %g", got.Abs)
	}
	if !almostEqual(got.Percent, 5) {
		t.Fatalf("expected 5%%, got %g", got.Percent)
	}
}

func TestCalculatePnL_ZeroEntryRejected(t *testing.T) {
	_, err := CalculatePnL(0, 100, domain.SideLong)
	if !errors.Is(err, domain.ErrZeroEntryPrice) {
		t.Fatalf("expected ErrZeroEntryPrice, got: %v", err)
	}
}

func TestCalculatePnL_NegativeEntryRejected(t *testing.T) {
	_, err := CalculatePnL(-1, 100, domain.SideLong)
	if !errors.Is(err, domain.ErrZeroEntryPrice) {
		t.Fatalf("expected ErrZeroEntryPrice, got: %v", err)
	}
}

func TestCalculatePnL_InvalidSideRejected(t *testing.T) {
	_, err := CalculatePnL(100, 101, domain.Side("sideways"))
	if err == nil {
		t.Fatal("expected error for invalid side")
	}
}

func TestCalculatePnL_FlatPrice(t *testing.T) {
	for _, side := range []domain.Side{domain.SideLong, domain.SideShort} {
		got, err := CalculatePnL(50, 50, side)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.Abs != 0 || got.Percent != 0 {
			t.Fatalf("flat price should be zero P&L, got %+v", got)
		}
	}
}
