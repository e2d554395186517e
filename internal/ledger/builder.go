package ledger

import (
	"sort"
	"strings"

	"trade-ledger/internal/models"
)

// BuilderFilter classifies fills against a single configured target builder
// and groups them into position lifecycles for taint detection. With no
// target configured nothing is ever builder-attributed and no taint fires.
type BuilderFilter struct {
	target string // lowercased, "" when unset
}

// NewBuilderFilter lowercases the target at construction.
func NewBuilderFilter(targetBuilder string) *BuilderFilter {
	return &BuilderFilter{target: strings.ToLower(strings.TrimSpace(targetBuilder))}
}

// Target returns the configured builder address, "" when unset.
func (b *BuilderFilter) Target() string { return b.target }

// BuilderOf returns the upstream-reported builder address of a fill, or ""
// when the fill carries none.
func (b *BuilderFilter) BuilderOf(f *models.RawFill) string {
	return f.Builder.Address
}

// IsBuilderFill reports whether the fill counts as routed through the target
// builder. A fill with no reported address but a positive builderFee is
// attributed to the target; the upstream does not always echo the address
// back on fills.
func (b *BuilderFilter) IsBuilderFill(f *models.RawFill) bool {
	if b.target == "" {
		return false
	}
	if addr := b.BuilderOf(f); addr != "" {
		return addr == b.target
	}
	return f.BuilderFeeFloat() > 0
}

// FilterBuilder keeps only builder-attributed fills. Returns an empty slice
// when no target is configured.
func (b *BuilderFilter) FilterBuilder(fills []models.RawFill) []models.RawFill {
	if b.target == "" {
		return []models.RawFill{}
	}
	out := make([]models.RawFill, 0, len(fills))
	for i := range fills {
		if b.IsBuilderFill(&fills[i]) {
			out = append(out, fills[i])
		}
	}
	return out
}

// Lifecycle is a contiguous span of fills between a position's departure
// from zero and its return to zero. A trailing unclosed span is still a
// lifecycle.
type Lifecycle struct {
	Fills         []models.RawFill
	HasBuilder    bool
	HasNonBuilder bool
}

// Tainted reports whether the lifecycle mixes builder and non-builder fills.
func (l *Lifecycle) Tainted() bool { return l.HasBuilder && l.HasNonBuilder }

// GroupByLifecycle walks the coin's fills in time order, tracking the signed
// net size. A lifecycle opens on a 0 -> non-zero transition and closes when
// the net returns to 0.
func (b *BuilderFilter) GroupByLifecycle(fills []models.RawFill, coin string) []Lifecycle {
	matched := make([]models.RawFill, 0, len(fills))
	for _, f := range fills {
		if strings.EqualFold(f.Coin, coin) {
			matched = append(matched, f)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].Time < matched[j].Time })

	var (
		cycles  []Lifecycle
		current *Lifecycle
		netSize float64
	)
	for i := range matched {
		f := matched[i]
		if current == nil {
			current = &Lifecycle{}
		}
		current.Fills = append(current.Fills, f)
		if b.IsBuilderFill(&f) {
			current.HasBuilder = true
		} else {
			current.HasNonBuilder = true
		}

		netSize += f.SignedSize()
		if floatIsZero(netSize) {
			netSize = 0
			cycles = append(cycles, *current)
			current = nil
		}
	}
	if current != nil {
		cycles = append(cycles, *current)
	}
	return cycles
}

// DetectTaint reports whether fills mix builder and non-builder attribution.
// Single pass with early exit.
func (b *BuilderFilter) DetectTaint(fills []models.RawFill) bool {
	var hasBuilder, hasNonBuilder bool
	for i := range fills {
		if b.IsBuilderFill(&fills[i]) {
			hasBuilder = true
		} else {
			hasNonBuilder = true
		}
		if hasBuilder && hasNonBuilder {
			return true
		}
	}
	return false
}

// AnyLifecycleTainted reports whether any lifecycle of the coin is tainted.
func (b *BuilderFilter) AnyLifecycleTainted(fills []models.RawFill, coin string) bool {
	for _, lc := range b.GroupByLifecycle(fills, coin) {
		if lc.Tainted() {
			return true
		}
	}
	return false
}

// floatIsZero absorbs float drift when signed sizes sum back to flat.
func floatIsZero(v float64) bool {
	const eps = 1e-9
	return v > -eps && v < eps
}
