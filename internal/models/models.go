package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ErrUnsupportedDatasource is returned at startup when DATASOURCE_TYPE names
// a datasource that has no implementation yet.
var ErrUnsupportedDatasource = errors.New("unsupported datasource")

// BuilderRef captures the upstream 'builder' field, which arrives in one of
// three shapes: a plain address string, an object {b, f}, or absent.
type BuilderRef struct {
	Address string  // lowercased 0x address, empty when absent
	FeeBps  float64 // only populated for the object form
}

// UnmarshalJSON accepts both the string and the {b, f} object encodings.
func (b *BuilderRef) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		*b = BuilderRef{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		b.Address = strings.ToLower(strings.TrimSpace(s))
		b.FeeBps = 0
		return nil
	}
	var obj struct {
		B string  `json:"b"`
		F float64 `json:"f"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("builder field: %w", err)
	}
	b.Address = strings.ToLower(strings.TrimSpace(obj.B))
	b.FeeBps = obj.F
	return nil
}

// RawFill is a single executed trade as returned by the upstream exchange.
// Prices and sizes arrive as decimal strings; they are parsed on demand.
type RawFill struct {
	Coin       string     `json:"coin"`
	Px         string     `json:"px"`
	Sz         string     `json:"sz"`
	Side       string     `json:"side"` // "B" or "A"
	Time       int64      `json:"time"` // ms epoch
	ClosedPnl  string     `json:"closedPnl"`
	Fee        string     `json:"fee"`
	Builder    BuilderRef `json:"builder"`
	BuilderFee string     `json:"builderFee"`
	Hash       string     `json:"hash"`
	Oid        int64      `json:"oid"`
	Tid        int64      `json:"tid"`
}

// PxFloat parses the fill price. Malformed decimals parse as 0.
func (f *RawFill) PxFloat() float64 { return parseFloatOrZero(f.Px) }

// SzFloat parses the fill size.
func (f *RawFill) SzFloat() float64 { return parseFloatOrZero(f.Sz) }

// FeeFloat parses the fee paid on the fill.
func (f *RawFill) FeeFloat() float64 { return parseFloatOrZero(f.Fee) }

// ClosedPnlFloat parses the realized PnL booked on the fill.
func (f *RawFill) ClosedPnlFloat() float64 { return parseFloatOrZero(f.ClosedPnl) }

// BuilderFeeFloat parses the builder fee, 0 when absent.
func (f *RawFill) BuilderFeeFloat() float64 { return parseFloatOrZero(f.BuilderFee) }

// SignedSize returns the size with buys positive and sells negative.
func (f *RawFill) SignedSize() float64 {
	if f.Side == "B" {
		return f.SzFloat()
	}
	return -f.SzFloat()
}

func parseFloatOrZero(s string) float64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}

// NormalizedFill is the externally visible trade shape.
type NormalizedFill struct {
	TimeMs       int64   `json:"timeMs"`
	Coin         string  `json:"coin"`
	Side         string  `json:"side"` // "buy" or "sell"
	Px           float64 `json:"px"`
	Sz           float64 `json:"sz"`
	Fee          float64 `json:"fee"`
	ClosedPnl    float64 `json:"closedPnl"`
	Builder      string  `json:"builder,omitempty"`
	BuilderLabel string  `json:"builderLabel,omitempty"`
}

// PositionState is one point of a reconstructed position timeline.
type PositionState struct {
	TimeMs     int64   `json:"timeMs"`
	Coin       string  `json:"coin"`
	NetSize    float64 `json:"netSize"`
	AvgEntryPx float64 `json:"avgEntryPx"`
	Tainted    bool    `json:"tainted"`
}

// PnlResult is the realized-PnL summary over a window.
type PnlResult struct {
	RealizedPnl      float64 `json:"realizedPnl"`
	ReturnPct        float64 `json:"returnPct"`
	FeesPaid         float64 `json:"feesPaid"`
	TradeCount       int     `json:"tradeCount"`
	Tainted          bool    `json:"tainted"`
	EffectiveCapital float64 `json:"effectiveCapital"`
}

// LeaderboardEntry is one ranked row of the leaderboard response.
type LeaderboardEntry struct {
	Rank        int     `json:"rank"`
	User        string  `json:"user"`
	MetricValue float64 `json:"metricValue"`
	TradeCount  int     `json:"tradeCount"`
	Tainted     bool    `json:"tainted"`
}

// AssetPosition is a single open position from the clearinghouse state.
type AssetPosition struct {
	Coin     string `json:"coin"`
	Szi      string `json:"szi"`
	EntryPx  string `json:"entryPx"`
	LeverOpt struct {
		Type  string `json:"type"`
		Value int    `json:"value"`
	} `json:"leverage"`
	UnrealizedPnl string `json:"unrealizedPnl"`
}

// ClearinghouseState mirrors the upstream clearinghouseState response; only
// the fields the derivation pipeline consumes are modeled.
type ClearinghouseState struct {
	MarginSummary struct {
		AccountValue string `json:"accountValue"`
		TotalNtlPos  string `json:"totalNtlPos"`
	} `json:"marginSummary"`
	AssetPositions []struct {
		Position AssetPosition `json:"position"`
	} `json:"assetPositions"`
	Time int64 `json:"time"`
}

// AccountValue parses the current equity from the margin summary.
func (c *ClearinghouseState) AccountValue() float64 {
	return parseFloatOrZero(c.MarginSummary.AccountValue)
}

// ValidAddress reports whether s is a 42-char 0x-prefixed hex address.
func ValidAddress(s string) bool {
	return len(s) == 42 && strings.HasPrefix(s, "0x") && common.IsHexAddress(s)
}

// NormalizeAddress canonicalizes an address to lowercase. Returns "" when the
// input is not a valid address.
func NormalizeAddress(s string) string {
	s = strings.TrimSpace(s)
	if !ValidAddress(s) {
		return ""
	}
	return strings.ToLower(s)
}
