package ledger

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"trade-ledger/internal/cache"
	"trade-ledger/internal/hyperliquid"
	"trade-ledger/internal/models"
)

// fakeDatasource serves canned fills and equity per user.
type fakeDatasource struct {
	fills    map[string][]models.RawFill
	equity   map[string]string
	fillsErr map[string]error
	builders map[string]string // tx hash -> builder address

	fetchCalls int32
}

func (d *fakeDatasource) Name() string { return "fake" }

func (d *fakeDatasource) FetchFillsOnce(ctx context.Context, user string, startMs, endMs int64) ([]models.RawFill, error) {
	atomic.AddInt32(&d.fetchCalls, 1)
	if err := d.fillsErr[user]; err != nil {
		return nil, err
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
	return d.builders[hash], nil
}

func (d *fakeDatasource) Ping(ctx context.Context) error { return nil }

// testServices bundles the derivation stack over a fake datasource.
type testServices struct {
	ds          *fakeDatasource
	filter      *BuilderFilter
	trades      *TradeService
	positions   *PositionService
	pnl         *PnlService
	registry    *Registry
	leaderboard *Leaderboard
}

func newTestServices(ds *fakeDatasource, targetBuilder string) *testServices {
	store := cache.New(time.Minute, time.Minute)
	paginator := hyperliquid.NewPaginator(ds)
	filter := NewBuilderFilter(targetBuilder)
	trades := NewTradeService(store, paginator, filter, nil, nil)
	pnl := NewPnlService(trades, filter, store, ds)
	registry := NewRegistry()
	return &testServices{
		ds:          ds,
		filter:      filter,
		trades:      trades,
		positions:   NewPositionService(trades, filter),
		pnl:         pnl,
		registry:    registry,
		leaderboard: NewLeaderboard(registry, pnl),
	}
}

func rawFill(coin, side string, px, sz float64, timeMs int64) models.RawFill {
	return models.RawFill{
		Coin: coin,
		Px:   strconv.FormatFloat(px, 'f', -1, 64),
		Sz:   strconv.FormatFloat(sz, 'f', -1, 64),
		Side: side,
		Time: timeMs,
	}
}

func builderFill(coin, side string, px, sz float64, timeMs int64, builder string) models.RawFill {
	f := rawFill(coin, side, px, sz, timeMs)
	f.Builder = models.BuilderRef{Address: builder}
	return f
}

func withPnl(f models.RawFill, closedPnl, fee float64) models.RawFill {
	f.ClosedPnl = strconv.FormatFloat(closedPnl, 'f', -1, 64)
	f.Fee = strconv.FormatFloat(fee, 'f', -1, 64)
	return f
}
