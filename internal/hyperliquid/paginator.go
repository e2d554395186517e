package hyperliquid

import (
	"context"
	"sort"
	"strings"

	"trade-ledger/internal/models"
)

// BatchMax is the upstream cap on fills returned per call.
const BatchMax = 2000

// fillsFetcher is the slice of the datasource the paginator needs.
type fillsFetcher interface {
	FetchFillsOnce(ctx context.Context, user string, startMs, endMs int64) ([]models.RawFill, error)
}

// Paginator assembles the complete fill stream for a (user, window) by
// walking the upstream in BatchMax-sized pages.
type Paginator struct {
	ds fillsFetcher
}

// NewPaginator wraps a datasource.
func NewPaginator(ds fillsFetcher) *Paginator {
	return &Paginator{ds: ds}
}

// FetchAllFills fetches every fill for user in [fromMs, toMs], optionally
// keeping only fills whose coin matches (case-insensitive). Any page failure
// aborts the whole window; partial results are never returned.
//
// The cursor advances past the last raw element's timestamp, so fills sharing
// a millisecond with a page boundary can be dropped. That is the accepted
// upstream contract.
func (p *Paginator) FetchAllFills(ctx context.Context, user, coin string, fromMs, toMs int64) ([]models.RawFill, error) {
	var out []models.RawFill
	cursor := fromMs
	for {
		batch, err := p.ds.FetchFillsOnce(ctx, user, cursor, toMs)
		if err != nil {
			return nil, err
		}
		if len(batch) == 0 {
			break
		}

		if coin == "" {
			out = append(out, batch...)
		} else {
			for _, f := range batch {
				if strings.EqualFold(f.Coin, coin) {
					out = append(out, f)
				}
			}
		}

		if len(batch) < BatchMax {
			break
		}
		cursor = batch[len(batch)-1].Time + 1
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out, nil
}
