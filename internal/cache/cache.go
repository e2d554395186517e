// Package cache is the read-through TTL store between the derivation
// services and the rate-limited upstream. Two logically independent maps are
// kept: paginated fill windows and clearinghouse snapshots. Concurrent misses
// for the same key collapse into a single upstream fetch.
package cache

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"trade-ledger/internal/metrics"
	"trade-ledger/internal/models"
)

const (
	DefaultFillsTTL         = 60 * time.Second
	DefaultClearinghouseTTL = 5 * time.Second
)

type fillsEntry struct {
	fills      []models.RawFill
	insertedAt time.Time
}

type clearinghouseEntry struct {
	state      *models.ClearinghouseState
	insertedAt time.Time
}

// Store holds both caches plus their single-flight groups. All maps are
// guarded by mu; fetches never run under the lock.
type Store struct {
	mu            sync.RWMutex
	fills         map[string]fillsEntry
	clearinghouse map[string]clearinghouseEntry

	fillsTTL time.Duration
	chTTL    time.Duration

	fillsFlight singleflight.Group
	chFlight    singleflight.Group
}

// New creates a store with the given TTLs; non-positive values fall back to
// the defaults.
func New(fillsTTL, clearinghouseTTL time.Duration) *Store {
	if fillsTTL <= 0 {
		fillsTTL = DefaultFillsTTL
	}
	if clearinghouseTTL <= 0 {
		clearinghouseTTL = DefaultClearinghouseTTL
	}
	return &Store{
		fills:         make(map[string]fillsEntry),
		clearinghouse: make(map[string]clearinghouseEntry),
		fillsTTL:      fillsTTL,
		chTTL:         clearinghouseTTL,
	}
}

// FillsKey builds the cache key for a fill window. The coin segment is "*"
// when no coin filter applies; both window edges participate so any window
// shift is a deliberate miss.
func FillsKey(user, coin string, fromMs, toMs int64) string {
	if coin == "" {
		coin = "*"
	}
	return fmt.Sprintf("%s|%s|%d|%d", strings.ToLower(user), coin, fromMs, toMs)
}

// GetFills returns the cached fill window for key, invoking fetch on a miss.
// Concurrent callers for the same expired key share one fetch: the leader
// runs detached from any single caller's context so it can complete on
// behalf of followers, while each follower may still abandon the wait.
func (s *Store) GetFills(ctx context.Context, key string, fetch func(ctx context.Context) ([]models.RawFill, error)) ([]models.RawFill, error) {
	s.mu.RLock()
	e, ok := s.fills[key]
	s.mu.RUnlock()
	if ok && time.Since(e.insertedAt) < s.fillsTTL {
		metrics.CacheLookups.WithLabelValues("fills", "hit").Inc()
		return e.fills, nil
	}
	metrics.CacheLookups.WithLabelValues("fills", "miss").Inc()
	s.pruneFills()

	ch := s.fillsFlight.DoChan(key, func() (interface{}, error) {
		fills, err := fetch(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.fills[key] = fillsEntry{fills: fills, insertedAt: time.Now()}
		s.mu.Unlock()
		return fills, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]models.RawFill), nil
	}
}

// GetClearinghouse returns the cached clearinghouse state for user (already
// lowercased), fetching on a miss with the same single-flight contract as
// GetFills.
func (s *Store) GetClearinghouse(ctx context.Context, user string, fetch func(ctx context.Context) (*models.ClearinghouseState, error)) (*models.ClearinghouseState, error) {
	key := strings.ToLower(user)

	s.mu.RLock()
	e, ok := s.clearinghouse[key]
	s.mu.RUnlock()
	if ok && time.Since(e.insertedAt) < s.chTTL {
		metrics.CacheLookups.WithLabelValues("clearinghouse", "hit").Inc()
		return e.state, nil
	}
	metrics.CacheLookups.WithLabelValues("clearinghouse", "miss").Inc()
	s.pruneClearinghouse()

	ch := s.chFlight.DoChan(key, func() (interface{}, error) {
		state, err := fetch(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.clearinghouse[key] = clearinghouseEntry{state: state, insertedAt: time.Now()}
		s.mu.Unlock()
		return state, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*models.ClearinghouseState), nil
	}
}

// InvalidateFills drops every fill window cached for the user.
func (s *Store) InvalidateFills(user string) {
	prefix := strings.ToLower(user) + "|"
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.fills {
		if strings.HasPrefix(k, prefix) {
			delete(s.fills, k)
		}
	}
}

// InvalidateClearinghouse drops the user's clearinghouse snapshot.
func (s *Store) InvalidateClearinghouse(user string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clearinghouse, strings.ToLower(user))
}

// Counts reports the live entry counts, for the status endpoint.
func (s *Store) Counts() (fills, clearinghouse int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.fills), len(s.clearinghouse)
}

// pruneFills drops entries older than twice the TTL. Triggered on every miss
// so the maps stay bounded without a background sweeper.
func (s *Store) pruneFills() {
	cutoff := time.Now().Add(-2 * s.fillsTTL)
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, e := range s.fills {
		if e.insertedAt.Before(cutoff) {
			delete(s.fills, k)
		}
	}
}

func (s *Store) pruneClearinghouse() {
	cutoff := time.Now().Add(-2 * s.chTTL)
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, e := range s.clearinghouse {
		if e.insertedAt.Before(cutoff) {
			delete(s.clearinghouse, k)
		}
	}
}
