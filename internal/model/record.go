package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeType is the direction derived from the sign of the percentage change
type TradeType string

const (
	TradeBuy  TradeType = "BUY"
	TradeSell TradeType = "SELL"
)

// Defaults for the constant columns carried by every record
const (
	DefaultStockType = "CASH"
	DefaultSegment   = "INTRADAY"
)

// TradeTypeFor returns BUY for a strictly positive change and SELL otherwise
func TradeTypeFor(percentageChange decimal.Decimal) TradeType {
	if percentageChange.IsPositive() {
		return TradeBuy
	}
	return TradeSell
}

// RawRow is one rendered table row as read from the source
type RawRow struct {
	Cells []string
	Label string
}

// Symbol returns the leading cell, or "" for a row without cells
func (r RawRow) Symbol() string {
	if len(r.Cells) == 0 {
		return ""
	}
	return r.Cells[0]
}

// CategoryFields holds the attributes that depend on the tab a row came from
type CategoryFields struct {
	ReferencePrice     decimal.NullDecimal `json:"reference_price"`
	ReferenceTime      ClockTime           `json:"reference_time"`
	Deviation          string              `json:"deviation,omitempty"`
	Range              string              `json:"range,omitempty"`
	Duration           int                 `json:"duration"`
	SecondaryIndicator bool                `json:"secondary_indicator"`
}

// NormalizedRecord is the canonical unit of output of the pipeline
type NormalizedRecord struct {
	Symbol           string          `json:"symbol"`
	LastPrice        decimal.Decimal `json:"last_price"`
	AbsoluteChange   decimal.Decimal `json:"absolute_change"`
	PercentageChange decimal.Decimal `json:"percentage_change"`
	TradeType        TradeType       `json:"trade_type"`
	ChangeText       string          `json:"change_text,omitempty"`
	Category         CategoryFields  `json:"category"`
	StrategyLabel    string          `json:"strategy_label"`
	StockType        string          `json:"stock_type"`
	Segment          string          `json:"segment"`
	RunID            string          `json:"run_id"`
	RunDate          time.Time       `json:"run_date"`
	CollectedAt      time.Time       `json:"collected_at"`
}

// StoredRecord is a NormalizedRecord after the store assigned it an id
type StoredRecord struct {
	NormalizedRecord
	ID       int64  `json:"id"`
	DedupKey string `json:"dedup_key"`
}
