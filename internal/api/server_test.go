package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"trade-ledger/internal/cache"
	"trade-ledger/internal/config"
	"trade-ledger/internal/eventbus"
	"trade-ledger/internal/hyperliquid"
	"trade-ledger/internal/ledger"
	"trade-ledger/internal/models"
)

const (
	addrA = "0x1111111111111111111111111111111111111111"
	addrB = "0x2222222222222222222222222222222222222222"
)

// fakeDatasource serves canned data for handler tests.
type fakeDatasource struct {
	fills   map[string][]models.RawFill
	equity  map[string]string
	fillErr error
	pingErr error
}

func (d *fakeDatasource) Name() string { return "fake" }

func (d *fakeDatasource) FetchFillsOnce(ctx context.Context, user string, startMs, endMs int64) ([]models.RawFill, error) {
	if d.fillErr != nil {
		return nil, d.fillErr
	}
	var out []models.RawFill
	for _, f := range d.fills[user] {
		if f.Time >= startMs && f.Time <= endMs {
			out = append(out, f)
		}
	}
	return out, nil
}

func (d *fakeDatasource) FetchClearinghouse(ctx context.Context, user string) (*models.ClearinghouseState, error) {
	var st models.ClearinghouseState
	st.MarginSummary.AccountValue = d.equity[user]
	return &st, nil
}

func (d *fakeDatasource) QueryTxBuilder(ctx context.Context, hash string) (string, error) {
	return "", nil
}

func (d *fakeDatasource) Ping(ctx context.Context) error { return d.pingErr }

func newTestServer(ds *fakeDatasource) *Server {
	cfg := config.Defaults()
	store := cache.New(time.Minute, time.Minute)
	limiter := hyperliquid.NewWeightLimiter(hyperliquid.DefaultMaxWeight, hyperliquid.DefaultWindowMs)
	filter := ledger.NewBuilderFilter(cfg.TargetBuilder)
	trades := ledger.NewTradeService(store, hyperliquid.NewPaginator(ds), filter, nil, nil)
	pnl := ledger.NewPnlService(trades, filter, store, ds)
	registry := ledger.NewRegistry()
	return NewServer(Deps{
		Config:      cfg,
		Datasource:  ds,
		Limiter:     limiter,
		Store:       store,
		Trades:      trades,
		Positions:   ledger.NewPositionService(trades, filter),
		Pnl:         pnl,
		Registry:    registry,
		Leaderboard: ledger.NewLeaderboard(registry, pnl),
		Bus:         eventbus.New(),
	}, "0")
}

var reqSeq int64

// serve runs one request through the full middleware chain. Each request gets
// its own client IP so the per-IP limiter stays out of the tests.
func serve(s *Server, method, target string, body string) *httptest.ResponseRecorder {
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		r = httptest.NewRequest(method, target, nil)
	}
	r.Header.Set("X-Forwarded-For", fmt.Sprintf("10.1.%d.%d", atomic.AddInt64(&reqSeq, 1)%250, atomic.LoadInt64(&reqSeq)/250))
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, r)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("bad JSON body %q: %v", w.Body.String(), err)
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(&fakeDatasource{})
	w := serve(s, "GET", "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body map[string]interface{}
	decodeBody(t, w, &body)
	if body["status"] != "healthy" || body["datasource"] != "fake" {
		t.Fatalf("unexpected health body: %v", body)
	}
}

func TestHealthUnhealthy(t *testing.T) {
	s := newTestServer(&fakeDatasource{pingErr: fmt.Errorf("down")})
	w := serve(s, "GET", "/health", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	var body map[string]interface{}
	decodeBody(t, w, &body)
	if body["status"] != "unhealthy" {
		t.Fatalf("unexpected health body: %v", body)
	}
}

func TestStatus(t *testing.T) {
	s := newTestServer(&fakeDatasource{})
	w := serve(s, "GET", "/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body map[string]interface{}
	decodeBody(t, w, &body)
	for _, key := range []string{"status", "build_commit", "uptime_seconds", "registered_users", "limiter_tokens"} {
		if _, ok := body[key]; !ok {
			t.Fatalf("status body missing %q: %v", key, body)
		}
	}
}

func TestTradesHappyPath(t *testing.T) {
	ds := &fakeDatasource{fills: map[string][]models.RawFill{
		addrA: {{Coin: "BTC", Px: "100", Sz: "2", Side: "B", Time: 10, Fee: "1"}},
	}}
	s := newTestServer(ds)

	w := serve(s, "GET", "/v1/trades?user="+addrA, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var body struct {
		Trades []models.NormalizedFill `json:"trades"`
	}
	decodeBody(t, w, &body)
	if len(body.Trades) != 1 || body.Trades[0].Side != "buy" || body.Trades[0].Px != 100 {
		t.Fatalf("unexpected trades: %+v", body.Trades)
	}
}

func TestTradesValidation(t *testing.T) {
	s := newTestServer(&fakeDatasource{})
	cases := []struct {
		name   string
		target string
	}{
		{"missing user", "/v1/trades"},
		{"bad address", "/v1/trades?user=nothex"},
		{"short address", "/v1/trades?user=0x123"},
		{"bad fromMs", "/v1/trades?user=" + addrA + "&fromMs=abc"},
		{"negative toMs", "/v1/trades?user=" + addrA + "&toMs=-5"},
		{"bad builderOnly", "/v1/trades?user=" + addrA + "&builderOnly=yes"},
		{"bad collapseBy", "/v1/trades?user=" + addrA + "&collapseBy=px"},
	}
	for _, tc := range cases {
		w := serve(s, "GET", tc.target, "")
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", tc.name, w.Code)
		}
		var body map[string]string
		decodeBody(t, w, &body)
		if body["error"] != "validation_error" {
			t.Fatalf("%s: expected validation_error, got %v", tc.name, body)
		}
	}
}

func TestUpstreamFailureIs502(t *testing.T) {
	ds := &fakeDatasource{fillErr: &hyperliquid.UpstreamError{
		Op:     "userFillsByTime",
		Status: http.StatusTooManyRequests,
		Err:    fmt.Errorf("rate limited"),
	}}
	s := newTestServer(ds)

	w := serve(s, "GET", "/v1/trades?user="+addrA, "")
	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", w.Code)
	}
	var body map[string]string
	decodeBody(t, w, &body)
	if body["error"] != "upstream_error" {
		t.Fatalf("expected upstream_error, got %v", body)
	}
	if strings.Contains(body["message"], "429") || strings.Contains(body["message"], "rate limited") {
		t.Fatalf("transport details must be withheld: %v", body)
	}
}

func TestUserLifecycle(t *testing.T) {
	s := newTestServer(&fakeDatasource{})

	w := serve(s, "POST", "/v1/users", `{"user":"`+strings.ToUpper(addrA)+`"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	// Re-registering is idempotent.
	w = serve(s, "POST", "/v1/users", `{"user":"`+addrA+`"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 on duplicate, got %d", w.Code)
	}
	var dup map[string]interface{}
	decodeBody(t, w, &dup)
	if dup["message"] != "User already registered" {
		t.Fatalf("unexpected duplicate body: %v", dup)
	}

	w = serve(s, "GET", "/v1/users", "")
	var list struct {
		Users []string `json:"users"`
	}
	decodeBody(t, w, &list)
	if len(list.Users) != 1 || list.Users[0] != addrA {
		t.Fatalf("expected lowercased address in list, got %v", list.Users)
	}

	w = serve(s, "DELETE", "/v1/users/"+addrA, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	w = serve(s, "DELETE", "/v1/users/"+addrA, "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on second delete, got %d", w.Code)
	}
	var gone map[string]interface{}
	decodeBody(t, w, &gone)
	if gone["success"] != false || gone["message"] != "User not found" {
		t.Fatalf("unexpected 404 body: %v", gone)
	}
}

func TestRegisterUserRejectsBadInput(t *testing.T) {
	s := newTestServer(&fakeDatasource{})

	w := serve(s, "POST", "/v1/users", `{bad json`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed JSON, got %d", w.Code)
	}
	w = serve(s, "POST", "/v1/users", `{"user":"0xnot-an-address"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad address, got %d", w.Code)
	}
}

func TestPnlEndpoint(t *testing.T) {
	ds := &fakeDatasource{
		fills: map[string][]models.RawFill{
			addrA: {
				{Coin: "BTC", Px: "100", Sz: "1", Side: "B", Time: 10, Fee: "1", ClosedPnl: "0"},
				{Coin: "BTC", Px: "110", Sz: "1", Side: "A", Time: 20, Fee: "1", ClosedPnl: "10"},
			},
		},
		equity: map[string]string{addrA: "1010"},
	}
	s := newTestServer(ds)

	w := serve(s, "GET", "/v1/pnl?user="+addrA, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var res models.PnlResult
	decodeBody(t, w, &res)
	if res.RealizedPnl != 10 || res.FeesPaid != 2 || res.TradeCount != 2 {
		t.Fatalf("unexpected pnl result: %+v", res)
	}
}

func TestPositionsEndpoint(t *testing.T) {
	ds := &fakeDatasource{fills: map[string][]models.RawFill{
		addrA: {
			{Coin: "BTC", Px: "100", Sz: "1", Side: "B", Time: 10},
			{Coin: "BTC", Px: "110", Sz: "1", Side: "A", Time: 20},
		},
	}}
	s := newTestServer(ds)

	w := serve(s, "GET", "/v1/positions/history?user="+addrA, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var body struct {
		Positions []models.PositionState `json:"positions"`
	}
	decodeBody(t, w, &body)
	if len(body.Positions) != 2 || body.Positions[1].NetSize != 0 {
		t.Fatalf("unexpected positions: %+v", body.Positions)
	}
}

func TestLeaderboardEndpoint(t *testing.T) {
	ds := &fakeDatasource{
		fills: map[string][]models.RawFill{
			addrA: {{Coin: "BTC", Px: "100", Sz: "1", Side: "A", Time: 10, ClosedPnl: "5"}},
			addrB: {{Coin: "BTC", Px: "100", Sz: "1", Side: "A", Time: 10, ClosedPnl: "50"}},
		},
		equity: map[string]string{addrA: "1000", addrB: "1000"},
	}
	s := newTestServer(ds)
	s.registry.Register(addrA)
	s.registry.Register(addrB)

	w := serve(s, "GET", "/v1/leaderboard?metric=pnl&fromMs=0&toMs=100", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var res ledger.LeaderboardResult
	decodeBody(t, w, &res)
	if len(res.Entries) != 2 || res.Entries[0].User != addrB {
		t.Fatalf("unexpected leaderboard: %+v", res.Entries)
	}

	w = serve(s, "GET", "/v1/leaderboard?metric=sharpe", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown metric, got %d", w.Code)
	}
}

func TestLeaderboardResponseCached(t *testing.T) {
	ds := &fakeDatasource{
		fills:  map[string][]models.RawFill{addrA: {{Coin: "BTC", Px: "100", Sz: "1", Side: "A", Time: 10, ClosedPnl: "5"}}},
		equity: map[string]string{addrA: "1000"},
	}
	s := newTestServer(ds)
	s.registry.Register(addrA)

	// Unique query so the shared response cache cannot collide across tests.
	target := "/v1/leaderboard?metric=pnl&fromMs=0&toMs=777"
	w := serve(s, "GET", target, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Header().Get("X-Cache") == "HIT" {
		t.Fatal("first response must not be a cache hit")
	}
	w = serve(s, "GET", target, "")
	if w.Header().Get("X-Cache") != "HIT" {
		t.Fatal("identical query within the TTL should hit the cache")
	}
}

func TestCommonMiddleware(t *testing.T) {
	s := newTestServer(&fakeDatasource{})

	w := serve(s, "GET", "/v1/users", "")
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected JSON content type, got %q", ct)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("CORS header missing")
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatal("request id missing")
	}

	w = serve(s, "OPTIONS", "/v1/users", "")
	if w.Code != http.StatusOK {
		t.Fatalf("preflight should short-circuit with 200, got %d", w.Code)
	}
}

func TestRequestIDEchoed(t *testing.T) {
	s := newTestServer(&fakeDatasource{})
	r := httptest.NewRequest("GET", "/v1/users", nil)
	r.Header.Set("X-Request-ID", "req-123")
	r.Header.Set("X-Forwarded-For", "10.9.9.9")
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, r)
	if w.Header().Get("X-Request-ID") != "req-123" {
		t.Fatalf("incoming request id should echo, got %q", w.Header().Get("X-Request-ID"))
	}
}

func TestMethodNotAllowed(t *testing.T) {
	s := newTestServer(&fakeDatasource{})
	w := serve(s, "DELETE", "/v1/trades", "")
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", w.Code)
	}
}
