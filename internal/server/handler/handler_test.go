package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/oneset-labs/onesetd/internal/domain"
	"github.com/oneset-labs/onesetd/internal/session"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

type fakeSessionService struct {
	sess      domain.Session
	createErr error
	snapErr   error
	gotReq    session.CreateRequest
}

func (f *fakeSessionService) CreateSession(_ context.Context, req session.CreateRequest) (domain.Session, error) {
	f.gotReq = req
	if f.createErr != nil {
		return domain.Session{}, f.createErr
	}
	return f.sess, nil
}

func (f *fakeSessionService) Snapshot() (domain.Session, error) {
	if f.snapErr != nil {
		return domain.Session{}, f.snapErr
	}
	return f.sess, nil
}

func (f *fakeSessionService) ValidateSession(context.Context) (bool, error) {
	return f.snapErr == nil, nil
}

type fakeBalances struct {
	units int64
}

func (f *fakeBalances) GetSessionBalance(context.Context, string) (int64, error) {
	return f.units, nil
}

type fakeTradeService struct {
	pos      domain.Position
	pnl      float64
	openErr  error
	closeErr error

	gotSymbol string
	gotSide   domain.Side
	gotSize   int64
}

func (f *fakeTradeService) OpenTrade(_ context.Context, symbol string, side domain.Side, sizeUnits int64, _ bool) (domain.Position, error) {
	f.gotSymbol = symbol
	f.gotSide = side
	f.gotSize = sizeUnits
	if f.openErr != nil {
		return domain.Position{}, f.openErr
	}
	return f.pos, nil
}

func (f *fakeTradeService) CloseTrade(context.Context, string) (float64, error) {
	if f.closeErr != nil {
		return 0, f.closeErr
	}
	return f.pnl, nil
}

func TestCreateSessionConvertsUnits(t *testing.T) {
	svc := &fakeSessionService{sess: domain.Session{ID: "sess-1"}}
	h := NewSessionHandler(svc, &fakeBalances{}, nil, nil, nil, testLogger())

	body, _ := json.Marshal(map[string]any{
		"userAddress":     "0xabc",
		"deposit":         50.5,
		"durationMinutes": 30,
		"chainId":         1,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/session", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.CreateSession(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.gotReq.DepositUnits != 50_500_000 {
		t.Errorf("expected 50_500_000 deposit units, got %d", svc.gotReq.DepositUnits)
	}
	if svc.gotReq.Duration != 30*time.Minute {
		t.Errorf("expected 30m duration, got %v", svc.gotReq.Duration)
	}
}

func TestCreateSessionRejectsMissingAddress(t *testing.T) {
	h := NewSessionHandler(&fakeSessionService{}, &fakeBalances{}, nil, nil, nil, testLogger())

	body := []byte(`{"deposit": 50}`)
	req := httptest.NewRequest(http.MethodPost, "/api/session", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.CreateSession(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestCreateSessionConflictWhenActive(t *testing.T) {
	svc := &fakeSessionService{createErr: domain.ErrSessionActive}
	h := NewSessionHandler(svc, &fakeBalances{}, nil, nil, nil, testLogger())

	body := []byte(`{"userAddress":"0xabc","deposit":50}`)
	req := httptest.NewRequest(http.MethodPost, "/api/session", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.CreateSession(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestGetSessionNotFoundWithoutSession(t *testing.T) {
	svc := &fakeSessionService{snapErr: domain.ErrNoSession}
	h := NewSessionHandler(svc, &fakeBalances{}, nil, nil, nil, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	rec := httptest.NewRecorder()

	h.GetSession(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestGetBalanceReportsBothSides(t *testing.T) {
	svc := &fakeSessionService{sess: domain.Session{ID: "sess-1", Balance: 52_000_000}}
	h := NewSessionHandler(svc, &fakeBalances{units: 51_500_000}, nil, nil, nil, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/session/balance", nil)
	rec := httptest.NewRecorder()

	h.GetBalance(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Balance        float64 `json:"balance"`
		ChannelBalance float64 `json:"channelBalance"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Balance != 52.0 {
		t.Errorf("expected balance 52.0, got %v", resp.Balance)
	}
	if resp.ChannelBalance != 51.5 {
		t.Errorf("expected channel balance 51.5, got %v", resp.ChannelBalance)
	}
}

func TestOpenTradeNormalizesInput(t *testing.T) {
	svc := &fakeTradeService{pos: domain.Position{ID: "pos-1"}}
	h := NewTradeHandler(svc, testLogger())

	body := []byte(`{"symbol":"btc","side":"LONG","size":10}`)
	req := httptest.NewRequest(http.MethodPost, "/api/trade/open", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.OpenTrade(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.gotSymbol != "BTC" {
		t.Errorf("expected symbol BTC, got %q", svc.gotSymbol)
	}
	if svc.gotSide != domain.SideLong {
		t.Errorf("expected long side, got %q", svc.gotSide)
	}
	if svc.gotSize != 10_000_000 {
		t.Errorf("expected 10_000_000 size units, got %d", svc.gotSize)
	}
}

func TestOpenTradeRejectsBadSide(t *testing.T) {
	h := NewTradeHandler(&fakeTradeService{}, testLogger())

	body := []byte(`{"symbol":"BTC","side":"sideways","size":10}`)
	req := httptest.NewRequest(http.MethodPost, "/api/trade/open", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.OpenTrade(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestOpenTradeMapsInsufficientBalance(t *testing.T) {
	svc := &fakeTradeService{openErr: domain.ErrInsufficientBalance}
	h := NewTradeHandler(svc, testLogger())

	body := []byte(`{"symbol":"BTC","side":"long","size":1000}`)
	req := httptest.NewRequest(http.MethodPost, "/api/trade/open", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.OpenTrade(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	t.Logf("Correctly blocked: %s", rec.Body.String())
}

func TestCloseTradeReturnsRealizedPnL(t *testing.T) {
	svc := &fakeTradeService{pnl: 1.25}
	h := NewTradeHandler(svc, testLogger())

	body := []byte(`{"positionId":"pos-1"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/trade/close", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.CloseTrade(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		RealizedPnL float64 `json:"realizedPnl"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.RealizedPnL != 1.25 {
		t.Errorf("expected realized pnl 1.25, got %v", resp.RealizedPnL)
	}
}

type fakeAgentControl struct {
	running bool
	logs    []domain.AgentLog
}

func (f *fakeAgentControl) Start(context.Context) bool {
	started := !f.running
	f.running = true
	return started
}
func (f *fakeAgentControl) Stop() bool              { stopped := f.running; f.running = false; return stopped }
func (f *fakeAgentControl) Running() bool           { return f.running }
func (f *fakeAgentControl) Logs() []domain.AgentLog { return f.logs }
func (f *fakeAgentControl) Stats() domain.AgentStats {
	return domain.AgentStats{Running: f.running}
}

type fakeFlagService struct {
	enabled bool
	err     error
}

func (f *fakeFlagService) SetAgentEnabled(_ context.Context, enabled bool) error {
	if f.err != nil {
		return f.err
	}
	f.enabled = enabled
	return nil
}

func TestAgentStartStopRoundTrip(t *testing.T) {
	control := &fakeAgentControl{}
	flags := &fakeFlagService{}
	h := NewAgentHandler(control, flags, testLogger())

	rec := httptest.NewRecorder()
	h.Start(rec, httptest.NewRequest(http.MethodPost, "/api/agent/start", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("start: expected 200, got %d", rec.Code)
	}
	if !control.running || !flags.enabled {
		t.Fatal("expected agent running and flag persisted")
	}

	rec = httptest.NewRecorder()
	h.Stop(rec, httptest.NewRequest(http.MethodPost, "/api/agent/stop", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("stop: expected 200, got %d", rec.Code)
	}
	if control.running || flags.enabled {
		t.Fatal("expected agent stopped and flag cleared")
	}
}

func TestAgentStartWithoutSession(t *testing.T) {
	h := NewAgentHandler(&fakeAgentControl{}, &fakeFlagService{err: domain.ErrNoSession}, testLogger())

	rec := httptest.NewRecorder()
	h.Start(rec, httptest.NewRequest(http.MethodPost, "/api/agent/start", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

type fakeSettlement struct {
	summary  domain.SettlementSummary
	err      error
	executed int
}

func (f *fakeSettlement) Preview(context.Context) (domain.SettlementSummary, error) {
	return f.summary, f.err
}

func (f *fakeSettlement) Execute(context.Context) (domain.SettlementSummary, error) {
	f.executed++
	return f.summary, f.err
}

func TestSettlementExecuteConflictWhenPending(t *testing.T) {
	h := NewSettlementHandler(&fakeSettlement{err: domain.ErrSettlementPending}, testLogger())

	rec := httptest.NewRecorder()
	h.Execute(rec, httptest.NewRequest(http.MethodPost, "/api/settlement/execute", nil))

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	t.Logf("Correctly blocked: %s", rec.Body.String())
}

func TestSettlementPreviewReturnsSummary(t *testing.T) {
	h := NewSettlementHandler(&fakeSettlement{
		summary: domain.SettlementSummary{FinalBalance: 52.47, PnL: 2.47, GasSaved: "$14.00"},
	}, testLogger())

	rec := httptest.NewRecorder()
	h.Preview(rec, httptest.NewRequest(http.MethodGet, "/api/settlement/preview", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var summary domain.SettlementSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if summary.GasSaved != "$14.00" {
		t.Errorf("expected gas saved $14.00, got %q", summary.GasSaved)
	}
}
