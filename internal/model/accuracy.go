package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccuracyScreenerType labels rows of the intraday accuracy export
const AccuracyScreenerType = "Intraday Accuracy"

// AccuracyRecord is one row of the intraday accuracy CSV export
type AccuracyRecord struct {
	Symbol              string          `json:"symbol"`
	LastPrice           decimal.Decimal `json:"last_price"`
	AbsoluteChange      decimal.Decimal `json:"absolute_change"`
	PercentageChange    decimal.Decimal `json:"percentage_change"`
	TradeType           TradeType       `json:"trade_type"`
	ChangeText          string          `json:"change_text,omitempty"`
	Volume              string          `json:"volume,omitempty"`
	DeviationFromPivots string          `json:"deviation_from_pivots,omitempty"`
	Sector              string          `json:"sector,omitempty"`
	ScreenerType        string          `json:"screener_type"`
	RunID               string          `json:"run_id"`
	RunDate             time.Time       `json:"run_date"`
	CollectedAt         time.Time       `json:"collected_at"`
	ID                  int64           `json:"id,omitempty"`
}
