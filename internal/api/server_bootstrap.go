package api

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"trade-ledger/internal/cache"
	"trade-ledger/internal/config"
	"trade-ledger/internal/eventbus"
	"trade-ledger/internal/hyperliquid"
	"trade-ledger/internal/ledger"
)

// BuildCommit is set by main to the git commit hash baked in at build time.
var BuildCommit = "dev"

// Server is the HTTP surface over the derivation services.
type Server struct {
	cfg         *config.Config
	ds          hyperliquid.Datasource
	limiter     *hyperliquid.WeightLimiter
	store       *cache.Store
	trades      *ledger.TradeService
	positions   *ledger.PositionService
	pnl         *ledger.PnlService
	registry    *ledger.Registry
	leaderboard *ledger.Leaderboard
	bus         *eventbus.Bus

	httpServer *http.Server
	startedAt  time.Time
}

// Deps carries the constructed service graph into the server.
type Deps struct {
	Config      *config.Config
	Datasource  hyperliquid.Datasource
	Limiter     *hyperliquid.WeightLimiter
	Store       *cache.Store
	Trades      *ledger.TradeService
	Positions   *ledger.PositionService
	Pnl         *ledger.PnlService
	Registry    *ledger.Registry
	Leaderboard *ledger.Leaderboard
	Bus         *eventbus.Bus
}

// NewServer builds the router and wires middleware and routes.
func NewServer(d Deps, port string) *Server {
	r := mux.NewRouter()

	s := &Server{
		cfg:         d.Config,
		ds:          d.Datasource,
		limiter:     d.Limiter,
		store:       d.Store,
		trades:      d.Trades,
		positions:   d.Positions,
		pnl:         d.Pnl,
		registry:    d.Registry,
		leaderboard: d.Leaderboard,
		bus:         d.Bus,
		startedAt:   time.Now(),
	}

	r.Use(commonMiddleware)
	r.Use(requestIDMiddleware)
	r.Use(rateLimitMiddleware)

	registerBaseRoutes(r, s)
	registerV1Routes(r, s)

	s.httpServer = &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}

	return s
}

// Start serves until Shutdown.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Router exposes the handler for tests.
func (s *Server) Router() http.Handler {
	return s.httpServer.Handler
}

func commonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS, PUT, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// requestIDMiddleware stamps every response with an id for log correlation.
// Incoming X-Request-ID headers are trusted and echoed back.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}
