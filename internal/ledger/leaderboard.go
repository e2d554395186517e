package ledger

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"trade-ledger/internal/metrics"
	"trade-ledger/internal/models"
)

const (
	DefaultLeaderboardLimit = 100
	MaxLeaderboardLimit     = 1000

	// leaderboardFanout bounds concurrent per-user PnL computations. The
	// upstream weight quota is the real throttle; this only keeps goroutine
	// counts sane for large registries.
	leaderboardFanout = 8
)

// LeaderboardParams selects the metric and window for a ranking run.
type LeaderboardParams struct {
	Metric          string // "pnl", "returnPct" or "volume"
	Coin            string
	FromMs          int64
	ToMs            int64
	BuilderOnly     bool
	MaxStartCapital float64
	Limit           int
}

// LeaderboardResult is the ranked response plus its generation timestamp.
type LeaderboardResult struct {
	Entries     []models.LeaderboardEntry `json:"entries"`
	GeneratedAt string                    `json:"generatedAt"`
}

// Leaderboard fans out PnL computation over the registered user set and
// ranks the survivors.
type Leaderboard struct {
	registry *Registry
	pnl      *PnlService
}

// NewLeaderboard wires the aggregator.
func NewLeaderboard(registry *Registry, pnl *PnlService) *Leaderboard {
	return &Leaderboard{registry: registry, pnl: pnl}
}

// ValidMetric reports whether m names a supported ranking metric.
func ValidMetric(m string) bool {
	switch m {
	case "pnl", "returnPct", "volume":
		return true
	}
	return false
}

// GetLeaderboard computes the ranking. Per-user failures are logged and the
// user is skipped; the leaderboard itself still succeeds. Users whose
// builder-only PnL is tainted are excluded.
func (l *Leaderboard) GetLeaderboard(ctx context.Context, p LeaderboardParams) (*LeaderboardResult, error) {
	if !ValidMetric(p.Metric) {
		return nil, fmt.Errorf("unknown metric %q", p.Metric)
	}
	limit := p.Limit
	if limit <= 0 {
		limit = DefaultLeaderboardLimit
	}
	if limit > MaxLeaderboardLimit {
		limit = MaxLeaderboardLimit
	}

	started := time.Now()
	users := l.registry.List()

	type row struct {
		user    string
		metric  float64
		trades  int
		tainted bool
		ok      bool
	}
	rows := make([]row, len(users))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(leaderboardFanout)
	for i, user := range users {
		g.Go(func() error {
			pnlParams := PnlParams{
				User:            user,
				Coin:            p.Coin,
				FromMs:          p.FromMs,
				ToMs:            p.ToMs,
				BuilderOnly:     p.BuilderOnly,
				MaxStartCapital: p.MaxStartCapital,
			}
			res, err := l.pnl.CalculatePnl(gctx, pnlParams)
			if err != nil {
				log.Printf("leaderboard: skipping %s: %v", user, err)
				return nil
			}
			if p.BuilderOnly && res.Tainted {
				return nil
			}

			r := row{user: user, trades: res.TradeCount, tainted: res.Tainted, ok: true}
			switch p.Metric {
			case "pnl":
				r.metric = res.RealizedPnl
			case "returnPct":
				r.metric = res.ReturnPct
			case "volume":
				vol, err := l.pnl.CalculateVolume(gctx, pnlParams)
				if err != nil {
					log.Printf("leaderboard: skipping %s (volume): %v", user, err)
					return nil
				}
				r.metric = vol
			}
			rows[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Keep registry snapshot order for ties; the sort below is stable.
	kept := rows[:0]
	for _, r := range rows {
		if r.ok {
			kept = append(kept, r)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].metric > kept[j].metric })

	if len(kept) > limit {
		kept = kept[:limit]
	}
	entries := make([]models.LeaderboardEntry, 0, len(kept))
	for i, r := range kept {
		entries = append(entries, models.LeaderboardEntry{
			Rank:        i + 1,
			User:        r.user,
			MetricValue: r.metric,
			TradeCount:  r.trades,
			Tainted:     r.tainted,
		})
	}

	metrics.LeaderboardBuildSeconds.Observe(time.Since(started).Seconds())
	return &LeaderboardResult{
		Entries:     entries,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	}, nil
}
