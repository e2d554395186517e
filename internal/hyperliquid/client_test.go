package hyperliquid

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(handler http.HandlerFunc) (*Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	c := NewClient(srv.URL, NewWeightLimiter(DefaultMaxWeight, DefaultWindowMs))
	return c, srv
}

func TestFetchFillsOnceDecodesBuilderVariants(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("bad request body: %v", err)
		}
		if req["type"] != "userFillsByTime" {
			t.Fatalf("unexpected request type %v", req["type"])
		}
		w.Write([]byte(`[
			{"coin":"BTC","px":"100.5","sz":"2","side":"B","time":1000,"closedPnl":"0","fee":"1.5","builder":{"b":"0xABCDEF","f":10},"hash":"0x1"},
			{"coin":"ETH","px":"200","sz":"1","side":"A","time":2000,"closedPnl":"5","fee":"0.5","builder":"0xFEEDBEEF"},
			{"coin":"SOL","px":"30","sz":"10","side":"B","time":3000,"closedPnl":"0","fee":"0.1","builderFee":"0.02"}
		]`))
	})
	defer srv.Close()

	fills, err := c.FetchFillsOnce(context.Background(), "0xuser", 0, 5000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fills) != 3 {
		t.Fatalf("expected 3 fills, got %d", len(fills))
	}
	if fills[0].Builder.Address != "0xabcdef" {
		t.Fatalf("object builder should lowercase, got %q", fills[0].Builder.Address)
	}
	if fills[1].Builder.Address != "0xfeedbeef" {
		t.Fatalf("string builder should parse, got %q", fills[1].Builder.Address)
	}
	if fills[2].Builder.Address != "" {
		t.Fatalf("absent builder should stay empty, got %q", fills[2].Builder.Address)
	}
	if fills[0].PxFloat() != 100.5 || fills[0].SzFloat() != 2 {
		t.Fatalf("decimal strings parsed wrong: px=%v sz=%v", fills[0].PxFloat(), fills[0].SzFloat())
	}
	if fills[2].BuilderFeeFloat() != 0.02 {
		t.Fatalf("builderFee parsed wrong: %v", fills[2].BuilderFeeFloat())
	}
}

func TestFetchClearinghouse(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"marginSummary":{"accountValue":"12345.67"},"time":1000}`))
	})
	defer srv.Close()

	state, err := c.FetchClearinghouse(context.Background(), "0xuser")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := state.AccountValue(); got != 12345.67 {
		t.Fatalf("expected equity 12345.67, got %v", got)
	}
}

func TestClientNon2xxIsUpstreamError(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	})
	defer srv.Close()

	_, err := c.FetchFillsOnce(context.Background(), "0xuser", 0, 100)
	var upstream *UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("expected UpstreamError, got %T: %v", err, err)
	}
	if upstream.Status != http.StatusTooManyRequests {
		t.Fatalf("expected status 429, got %d", upstream.Status)
	}
	if upstream.Op != "userFillsByTime" {
		t.Fatalf("expected op userFillsByTime, got %q", upstream.Op)
	}
}

func TestClientNonJSONBodyIsUpstreamError(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>gateway error</html>"))
	})
	defer srv.Close()

	_, err := c.FetchClearinghouse(context.Background(), "0xuser")
	var upstream *UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("expected UpstreamError, got %T: %v", err, err)
	}
}

func TestPing(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"universe":[]}`))
	})
	defer srv.Close()

	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("ping should succeed on any 2xx: %v", err)
	}
}

func TestQueryTxBuilderWalksNestedPayload(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"tx":{"action":{"order":{"builder":{"b":"0xAA11","f":5}}}}}`))
	})
	defer srv.Close()

	addr, err := c.QueryTxBuilder(context.Background(), "0xhash")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if addr != "0xaa11" {
		t.Fatalf("expected 0xaa11, got %q", addr)
	}
}

func TestDatasourceFactory(t *testing.T) {
	limiter := NewWeightLimiter(0, 0)
	ds, err := NewDatasource("hyperliquid", "", limiter)
	if err != nil {
		t.Fatalf("hyperliquid must be supported: %v", err)
	}
	if ds.Name() != "hyperliquid" {
		t.Fatalf("unexpected name %q", ds.Name())
	}

	if _, err := NewDatasource("binance", "", limiter); err == nil {
		t.Fatal("expected unsupported datasource error")
	}
}
