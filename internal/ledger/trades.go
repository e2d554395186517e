package ledger

import (
	"context"
	"sort"
	"strconv"

	"trade-ledger/internal/cache"
	"trade-ledger/internal/hyperliquid"
	"trade-ledger/internal/models"
)

// TradeParams selects a fill window for a user.
type TradeParams struct {
	User        string // lowercased address
	Coin        string
	FromMs      int64
	ToMs        int64
	BuilderOnly bool
	CollapseBy  string // "", "hash", "oid" or "tid"
}

// TradeService normalizes and filters fills. Sibling services reuse its raw
// accessor so every derived view shares the same cached backing store.
type TradeService struct {
	store     *cache.Store
	paginator *hyperliquid.Paginator
	filter    *BuilderFilter
	labels    map[string]string // builder address -> display label
	resolver  *BuilderResolver  // nil unless tx-hash resolution is enabled
}

// NewTradeService wires the trade pipeline. labels and resolver are optional.
func NewTradeService(store *cache.Store, paginator *hyperliquid.Paginator, filter *BuilderFilter, labels map[string]string, resolver *BuilderResolver) *TradeService {
	return &TradeService{
		store:     store,
		paginator: paginator,
		filter:    filter,
		labels:    labels,
		resolver:  resolver,
	}
}

// GetRawFills returns the cached full fill set for the window, fetching
// through the paginator on a miss.
func (s *TradeService) GetRawFills(ctx context.Context, user, coin string, fromMs, toMs int64) ([]models.RawFill, error) {
	key := cache.FillsKey(user, coin, fromMs, toMs)
	return s.store.GetFills(ctx, key, func(ctx context.Context) ([]models.RawFill, error) {
		return s.paginator.FetchAllFills(ctx, user, coin, fromMs, toMs)
	})
}

// GetTrades returns the normalized, filtered trade list for the window.
func (s *TradeService) GetTrades(ctx context.Context, p TradeParams) ([]models.NormalizedFill, error) {
	fills, err := s.GetRawFills(ctx, p.User, p.Coin, p.FromMs, p.ToMs)
	if err != nil {
		return nil, err
	}

	// The cache key is exact, but re-check the window defensively.
	windowed := make([]models.RawFill, 0, len(fills))
	for _, f := range fills {
		if f.Time >= p.FromMs && f.Time <= p.ToMs {
			windowed = append(windowed, f)
		}
	}

	if p.BuilderOnly {
		windowed = s.filter.FilterBuilder(windowed)
	}
	if p.CollapseBy != "" {
		windowed = collapseFills(windowed, p.CollapseBy)
	}

	out := make([]models.NormalizedFill, 0, len(windowed))
	for i := range windowed {
		out = append(out, s.normalize(ctx, &windowed[i]))
	}
	return out, nil
}

// normalize maps a raw fill to the external shape. The builder string is the
// reported address when present, the literal "builder" when only a positive
// builderFee attests to routing, and absent otherwise.
func (s *TradeService) normalize(ctx context.Context, f *models.RawFill) models.NormalizedFill {
	side := "sell"
	if f.Side == "B" {
		side = "buy"
	}

	builder := f.Builder.Address
	if builder == "" && s.resolver != nil && f.Hash != "" {
		builder = s.resolver.Resolve(ctx, f.Hash)
	}
	if builder == "" && f.BuilderFeeFloat() > 0 {
		builder = "builder"
	}

	n := models.NormalizedFill{
		TimeMs:    f.Time,
		Coin:      f.Coin,
		Side:      side,
		Px:        f.PxFloat(),
		Sz:        f.SzFloat(),
		Fee:       f.FeeFloat(),
		ClosedPnl: f.ClosedPnlFloat(),
		Builder:   builder,
	}
	if label, ok := s.labels[builder]; ok {
		n.BuilderLabel = label
	}
	return n
}

// collapseFills keeps the first fill (in time order) per distinct identity
// key. Fills lacking the key pass through unchanged.
func collapseFills(fills []models.RawFill, by string) []models.RawFill {
	sorted := make([]models.RawFill, len(fills))
	copy(sorted, fills)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Time < sorted[j].Time })

	seen := make(map[string]bool, len(sorted))
	out := make([]models.RawFill, 0, len(sorted))
	for _, f := range sorted {
		key := identityKey(&f, by)
		if key == "" {
			out = append(out, f)
			continue
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, f)
	}
	return out
}

func identityKey(f *models.RawFill, by string) string {
	switch by {
	case "hash":
		return f.Hash
	case "oid":
		if f.Oid == 0 {
			return ""
		}
		return strconv.FormatInt(f.Oid, 10)
	case "tid":
		if f.Tid == 0 {
			return ""
		}
		return strconv.FormatInt(f.Tid, 10)
	}
	return ""
}
