// Package normalize turns raw screener rows into typed records.
package normalize

import (
	"errors"

	"sjsage522/orbscreener/internal/model"
	"sjsage522/orbscreener/internal/run"
	"sjsage522/orbscreener/logger"
	apperrors "sjsage522/orbscreener/pkg/errors"
)

// Stats counts what the normalizer accepted and why it rejected rows
type Stats struct {
	Accepted      int
	Rejected      int
	MissingSymbol int
	BadPrice      int
}

// Normalizer converts RawRows of one run into NormalizedRecords
type Normalizer struct {
	layout Layout
	run    run.Run
	log    *logger.Logger
	stats  Stats
}

// New creates a normalizer stamping records with r
func New(r run.Run, layout Layout) *Normalizer {
	return &Normalizer{
		layout: layout,
		run:    r,
		log:    logger.ForNormalizer(),
	}
}

// Normalize converts one row. A missing symbol or a malformed price cell is a
// record error; every other missing field is left null.
func (n *Normalizer) Normalize(row model.RawRow) (model.NormalizedRecord, error) {
	symbol := cell(row.Cells, n.layout.Symbol)
	if symbol == "" {
		n.stats.Rejected++
		n.stats.MissingSymbol++
		err := apperrors.NewRecord("", "row has no symbol", nil)
		n.log.Debug().Str("tab", row.Label).Err(err).Msg("Rejected row")
		return model.NormalizedRecord{}, err
	}

	price, err := ParsePriceCell(cell(row.Cells, n.layout.Price))
	if err != nil {
		n.stats.Rejected++
		n.stats.BadPrice++
		recErr := apperrors.NewRecord(symbol, "malformed price cell", err)
		n.log.Warn().Str("tab", row.Label).Str("symbol", symbol).Err(err).Msg("Rejected row")
		return model.NormalizedRecord{}, recErr
	}

	duration, secondary := ParseLabel(row.Label)
	rec := model.NormalizedRecord{
		Symbol:           symbol,
		LastPrice:        price.Price,
		AbsoluteChange:   price.AbsoluteChange,
		PercentageChange: price.PercentageChange,
		TradeType:        model.TradeTypeFor(price.PercentageChange),
		ChangeText:       price.ChangeText,
		Category: model.CategoryFields{
			ReferencePrice:     parseOptionalDecimal(cell(row.Cells, n.layout.ReferencePrice)),
			ReferenceTime:      ParseClockTime(cell(row.Cells, n.layout.ReferenceTime)),
			Deviation:          cell(row.Cells, n.layout.Deviation),
			Range:              cell(row.Cells, n.layout.Range),
			Duration:           duration,
			SecondaryIndicator: secondary,
		},
		StrategyLabel: row.Label,
		StockType:     model.DefaultStockType,
		Segment:       model.DefaultSegment,
		RunID:         n.run.ID,
		RunDate:       n.run.Date,
	}
	n.stats.Accepted++
	return rec, nil
}

// NormalizeAll converts rows in order, skipping rejected ones
func (n *Normalizer) NormalizeAll(rows []model.RawRow) []model.NormalizedRecord {
	records := make([]model.NormalizedRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := n.Normalize(row)
		if err != nil {
			continue
		}
		records = append(records, rec)
	}
	n.log.Info().
		Int("accepted", n.stats.Accepted).
		Int("rejected", n.stats.Rejected).
		Int("missing_symbol", n.stats.MissingSymbol).
		Int("bad_price", n.stats.BadPrice).
		Msg("Normalized rows")
	return records
}

// Stats returns the counters accumulated so far
func (n *Normalizer) Stats() Stats {
	return n.stats
}

// IsPriceError reports whether err was caused by a malformed price cell
func IsPriceError(err error) bool {
	var pe *PriceParseError
	return errors.As(err, &pe)
}
