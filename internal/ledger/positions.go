package ledger

import (
	"context"
	"math"
	"sort"
	"strings"

	"trade-ledger/internal/models"
)

// PositionParams selects a reconstruction window for a user.
type PositionParams struct {
	User         string // lowercased address
	Coin         string
	FromMs       int64
	ToMs         int64
	BuilderOnly  bool
	IncludePrior bool // fetch from 0 so entry prices at FromMs are correct
}

// PositionService reconstructs position timelines from fills using the
// average-cost method.
type PositionService struct {
	trades *TradeService
	filter *BuilderFilter
}

// NewPositionService wires the position reconstruction pipeline.
func NewPositionService(trades *TradeService, filter *BuilderFilter) *PositionService {
	return &PositionService{trades: trades, filter: filter}
}

// GetPositionHistory returns one state per position-modifying fill inside the
// window, reconstructed independently per coin and merged in time order.
func (s *PositionService) GetPositionHistory(ctx context.Context, p PositionParams) ([]models.PositionState, error) {
	fetchFrom := p.FromMs
	if p.IncludePrior {
		fetchFrom = 0
	}
	fills, err := s.trades.GetRawFills(ctx, p.User, p.Coin, fetchFrom, p.ToMs)
	if err != nil {
		return nil, err
	}

	coins := coinSet(fills, p.Coin)

	out := make([]models.PositionState, 0, len(fills))
	for _, coin := range coins {
		out = append(out, s.reconstructCoin(fills, coin, p)...)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TimeMs < out[j].TimeMs })
	return out, nil
}

// coinSet resolves the coins to reconstruct: the explicit filter upper-cased,
// or every distinct coin appearing in the fills.
func coinSet(fills []models.RawFill, coin string) []string {
	if coin != "" {
		return []string{strings.ToUpper(coin)}
	}
	seen := make(map[string]bool)
	var coins []string
	for _, f := range fills {
		if !seen[f.Coin] {
			seen[f.Coin] = true
			coins = append(coins, f.Coin)
		}
	}
	sort.Strings(coins)
	return coins
}

// reconstructCoin replays one coin's fills through the average-cost model.
//
// In builder-only mode, fills not attributed to the target builder leave the
// running position untouched but still feed the lifecycle's builder /
// non-builder counters, which reset whenever the position returns to flat.
func (s *PositionService) reconstructCoin(fills []models.RawFill, coin string, p PositionParams) []models.PositionState {
	matched := make([]models.RawFill, 0, len(fills))
	for _, f := range fills {
		if strings.EqualFold(f.Coin, coin) {
			matched = append(matched, f)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].Time < matched[j].Time })

	var (
		netSize    float64
		avgEntryPx float64
		totalCost  float64

		hasBuilder    bool
		hasNonBuilder bool

		out []models.PositionState
	)

	for i := range matched {
		f := &matched[i]
		isBuilder := s.filter.IsBuilderFill(f)
		if isBuilder {
			hasBuilder = true
		} else {
			hasNonBuilder = true
		}

		if p.BuilderOnly && !isBuilder {
			continue
		}

		signed := f.SignedSize()
		px := f.PxFloat()
		prev := netSize
		next := prev + signed

		switch {
		case floatIsZero(prev):
			// Opening a fresh lifecycle.
			avgEntryPx = px
			totalCost = math.Abs(next) * px
		case sameSign(prev, signed):
			// Adding to the position re-averages the entry.
			totalCost = math.Abs(prev)*avgEntryPx + math.Abs(signed)*px
			if !floatIsZero(next) {
				avgEntryPx = totalCost / math.Abs(next)
			}
		case math.Abs(signed) > math.Abs(prev):
			// Flip: the surviving remainder was opened at this fill's price.
			avgEntryPx = px
			totalCost = math.Abs(next) * px
		default:
			// Reduce: entry price holds; only the net size shrinks.
		}

		netSize = next
		if floatIsZero(netSize) {
			netSize = 0
			avgEntryPx = 0
			totalCost = 0
		}

		if f.Time >= p.FromMs {
			out = append(out, models.PositionState{
				TimeMs:     f.Time,
				Coin:       coin,
				NetSize:    netSize,
				AvgEntryPx: avgEntryPx,
				Tainted:    hasBuilder && hasNonBuilder,
			})
		}

		// Flat closes the lifecycle; the taint counters start over.
		if netSize == 0 {
			hasBuilder = false
			hasNonBuilder = false
		}
	}
	return out
}

func sameSign(a, b float64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}
