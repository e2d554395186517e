package ledger

import (
	"context"
	"time"

	"trade-ledger/internal/cache"
	"trade-ledger/internal/hyperliquid"
	"trade-ledger/internal/models"
)

const (
	// DefaultMaxStartCapital caps the return denominator so whales and
	// minnows rank comparably.
	DefaultMaxStartCapital = 1_000_000

	minEffectiveCapital = 0.01
	returnPctCap        = 1000
)

// PnlParams selects a PnL window for a user.
type PnlParams struct {
	User            string // lowercased address
	Coin            string
	FromMs          int64
	ToMs            int64
	BuilderOnly     bool
	MaxStartCapital float64
}

// PnlService aggregates realized PnL, fees, volume and trade count over a
// window and normalizes the return against capped capital.
type PnlService struct {
	trades *TradeService
	filter *BuilderFilter
	store  *cache.Store
	ds     hyperliquid.Datasource
}

// NewPnlService wires the PnL pipeline on top of the trade service's raw
// accessor and the clearinghouse cache.
func NewPnlService(trades *TradeService, filter *BuilderFilter, store *cache.Store, ds hyperliquid.Datasource) *PnlService {
	return &PnlService{trades: trades, filter: filter, store: store, ds: ds}
}

// CalculatePnl computes the realized-PnL summary for the window.
func (s *PnlService) CalculatePnl(ctx context.Context, p PnlParams) (*models.PnlResult, error) {
	fills, err := s.trades.GetRawFills(ctx, p.User, p.Coin, p.FromMs, p.ToMs)
	if err != nil {
		return nil, err
	}

	var (
		realizedPnl float64
		feesPaid    float64
		tradeCount  int

		hasBuilder    bool
		hasNonBuilder bool
	)
	for i := range fills {
		f := &fills[i]
		if f.Time < p.FromMs || f.Time > p.ToMs {
			continue
		}
		// PnL-level taint is global over the window, not per lifecycle.
		if s.filter.IsBuilderFill(f) {
			hasBuilder = true
		} else {
			hasNonBuilder = true
		}
		if p.BuilderOnly && !s.filter.IsBuilderFill(f) {
			continue
		}
		realizedPnl += f.ClosedPnlFloat()
		feesPaid += f.FeeFloat()
		tradeCount++
	}

	equity, err := s.equityAt(ctx, p.User, p.FromMs, fills)
	if err != nil {
		return nil, err
	}

	maxCapital := p.MaxStartCapital
	if maxCapital <= 0 {
		maxCapital = DefaultMaxStartCapital
	}
	effective := equity
	if effective < minEffectiveCapital {
		effective = minEffectiveCapital
	}
	if effective > maxCapital {
		effective = maxCapital
	}

	returnPct := 100 * realizedPnl / effective
	if returnPct > returnPctCap {
		returnPct = returnPctCap
	}
	if returnPct < -returnPctCap {
		returnPct = -returnPctCap
	}

	return &models.PnlResult{
		RealizedPnl:      realizedPnl,
		ReturnPct:        returnPct,
		FeesPaid:         feesPaid,
		TradeCount:       tradeCount,
		Tainted:          p.BuilderOnly && hasBuilder && hasNonBuilder,
		EffectiveCapital: effective,
	}, nil
}

// CalculateVolume sums px*sz over the fills counted under the mode.
func (s *PnlService) CalculateVolume(ctx context.Context, p PnlParams) (float64, error) {
	fills, err := s.trades.GetRawFills(ctx, p.User, p.Coin, p.FromMs, p.ToMs)
	if err != nil {
		return 0, err
	}
	var volume float64
	for i := range fills {
		f := &fills[i]
		if f.Time < p.FromMs || f.Time > p.ToMs {
			continue
		}
		if p.BuilderOnly && !s.filter.IsBuilderFill(f) {
			continue
		}
		volume += f.PxFloat() * f.SzFloat()
	}
	return volume, nil
}

// equityAt approximates the account equity at fromMs. The upstream exposes
// only current equity, so realized PnL booked since fromMs is subtracted
// back out. The subtraction only covers the fills of the requested window
// (and its coin filter, when set), so PnL booked after toMs or on other
// coins is not backed out. Deposits and withdrawals are not adjusted for
// either; the clamp to [0.01, maxStartCapital] bounds the drift.
func (s *PnlService) equityAt(ctx context.Context, user string, fromMs int64, windowFills []models.RawFill) (float64, error) {
	state, err := s.store.GetClearinghouse(ctx, user, func(ctx context.Context) (*models.ClearinghouseState, error) {
		return s.ds.FetchClearinghouse(ctx, user)
	})
	if err != nil {
		return 0, err
	}
	current := state.AccountValue()

	now := time.Now().UnixMilli()
	if fromMs >= now {
		return current, nil
	}

	var pnlSince float64
	for i := range windowFills {
		if windowFills[i].Time > fromMs {
			pnlSince += windowFills[i].ClosedPnlFloat()
		}
	}

	equity := current - pnlSince
	if equity < minEffectiveCapital {
		equity = minEffectiveCapital
	}
	return equity, nil
}
