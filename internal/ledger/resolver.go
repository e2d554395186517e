package ledger

import (
	"context"
	"log"
	"sync"

	"trade-ledger/internal/hyperliquid"
)

// BuilderResolver recovers builder addresses for fills that do not report
// one, by querying the transaction record upstream. Resolutions are
// immutable, so results (including "no builder") are cached for the life of
// the process. Lookup failures degrade to unattributed and never fail the
// surrounding request.
type BuilderResolver struct {
	ds hyperliquid.Datasource

	mu    sync.Mutex
	byTx  map[string]string // tx hash -> lowercased address, "" = none
	debug bool
}

// NewBuilderResolver wires a resolver against the datasource.
func NewBuilderResolver(ds hyperliquid.Datasource, debug bool) *BuilderResolver {
	return &BuilderResolver{
		ds:    ds,
		byTx:  make(map[string]string),
		debug: debug,
	}
}

// Resolve returns the builder address recorded on the transaction, or ""
// when there is none or the lookup fails.
func (r *BuilderResolver) Resolve(ctx context.Context, txHash string) string {
	r.mu.Lock()
	addr, ok := r.byTx[txHash]
	r.mu.Unlock()
	if ok {
		return addr
	}

	addr, err := r.ds.QueryTxBuilder(ctx, txHash)
	if err != nil {
		if r.debug {
			log.Printf("builder resolution failed for tx %s: %v", txHash, err)
		}
		return ""
	}

	r.mu.Lock()
	r.byTx[txHash] = addr
	r.mu.Unlock()
	return addr
}

// Size reports how many transactions have been resolved.
func (r *BuilderResolver) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byTx)
}
