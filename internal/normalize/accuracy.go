package normalize

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"sjsage522/orbscreener/internal/model"
	"sjsage522/orbscreener/internal/run"
	apperrors "sjsage522/orbscreener/pkg/errors"
)

// Column positions of the accuracy export
const (
	accuracySymbol = iota
	accuracyPrice
	accuracyVolume
	accuracyDeviation
	accuracySector
)

// ParseAccuracyCSV reads the intraday accuracy export. The first line is a
// header. Rows without a symbol or with a malformed price cell are returned
// as record errors and skipped; a CSV that cannot be read at all fails whole.
func ParseAccuracyCSV(r io.Reader, rn run.Run) ([]model.AccuracyRecord, []error, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	if _, err := reader.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("read accuracy header: %w", err)
	}

	var (
		records []model.AccuracyRecord
		rejects []error
	)
	for line := 2; ; line++ {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return records, rejects, fmt.Errorf("read accuracy line %d: %w", line, err)
		}

		symbol := cell(fields, accuracySymbol)
		if symbol == "" {
			rejects = append(rejects, apperrors.NewRecord("", fmt.Sprintf("accuracy line %d has no symbol", line), nil))
			continue
		}
		price, err := ParsePriceCell(cell(fields, accuracyPrice))
		if err != nil {
			rejects = append(rejects, apperrors.NewRecord(symbol, "malformed price cell", err))
			continue
		}

		records = append(records, model.AccuracyRecord{
			Symbol:              symbol,
			LastPrice:           price.Price,
			AbsoluteChange:      price.AbsoluteChange,
			PercentageChange:    price.PercentageChange,
			TradeType:           model.TradeTypeFor(price.PercentageChange),
			ChangeText:          price.ChangeText,
			Volume:              cell(fields, accuracyVolume),
			DeviationFromPivots: cell(fields, accuracyDeviation),
			Sector:              cell(fields, accuracySector),
			ScreenerType:        model.AccuracyScreenerType,
			RunID:               rn.ID,
			RunDate:             rn.Date,
		})
	}
	return records, rejects, nil
}
