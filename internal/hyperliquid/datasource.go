package hyperliquid

import (
	"context"
	"fmt"

	"trade-ledger/internal/models"
)

// Datasource is the upstream exchange surface the derivation pipeline
// consumes. Only the hyperliquid implementation exists today; the factory is
// the extension point for additional venues.
type Datasource interface {
	Name() string
	FetchFillsOnce(ctx context.Context, user string, startMs, endMs int64) ([]models.RawFill, error)
	FetchClearinghouse(ctx context.Context, user string) (*models.ClearinghouseState, error)
	QueryTxBuilder(ctx context.Context, hash string) (string, error)
	Ping(ctx context.Context) error
}

// NewDatasource builds the datasource named by dsType.
func NewDatasource(dsType, baseURL string, limiter *WeightLimiter) (Datasource, error) {
	switch dsType {
	case "", "hyperliquid":
		return NewClient(baseURL, limiter), nil
	default:
		return nil, fmt.Errorf("%w: %q", models.ErrUnsupportedDatasource, dsType)
	}
}
