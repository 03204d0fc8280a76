package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"sjsage522/orbscreener/internal/model"
)

const (
	dateLayout      = "2006-01-02"
	timestampLayout = "2006-01-02T15:04:05.999999999Z07:00"
)

const selectColumns = `id, run_id, run_date, strategy_label, symbol,
	last_price, absolute_change, percentage_change, trade_type,
	reference_time, duration, secondary_indicator, reference_price,
	deviation, range_text, change_text, stock_type, segment,
	dedup_key, collected_at`

// FindBySymbolAndDate returns the records of symbol collected on date, oldest first
func (s *Store) FindBySymbolAndDate(ctx context.Context, symbol string, date time.Time) ([]model.StoredRecord, error) {
	query := `SELECT ` + selectColumns + ` FROM orb_records WHERE symbol = ? AND run_date = ? ORDER BY id`
	return s.find(ctx, query, symbol, formatDate(date))
}

// FindByCategory returns the records of one duration and indicator flag, oldest first
func (s *Store) FindByCategory(ctx context.Context, duration int, secondary bool) ([]model.StoredRecord, error) {
	query := `SELECT ` + selectColumns + ` FROM orb_records WHERE duration = ? AND secondary_indicator = ? ORDER BY id`
	return s.find(ctx, query, duration, secondary)
}

// FindByRun returns every record stored for runID, oldest first
func (s *Store) FindByRun(ctx context.Context, runID string) ([]model.StoredRecord, error) {
	query := `SELECT ` + selectColumns + ` FROM orb_records WHERE run_id = ? ORDER BY id`
	return s.find(ctx, query, runID)
}

func (s *Store) find(ctx context.Context, query string, args ...interface{}) ([]model.StoredRecord, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var records []model.StoredRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

func scanRecord(rows *sql.Rows) (model.StoredRecord, error) {
	var (
		rec        model.StoredRecord
		runDate    sqlTime
		collected  sqlTime
		tradeType  string
		deviation  sql.NullString
		rangeText  sql.NullString
		changeText sql.NullString
	)
	err := rows.Scan(
		&rec.ID,
		&rec.RunID,
		&runDate,
		&rec.StrategyLabel,
		&rec.Symbol,
		&rec.LastPrice,
		&rec.AbsoluteChange,
		&rec.PercentageChange,
		&tradeType,
		&rec.Category.ReferenceTime,
		&rec.Category.Duration,
		&rec.Category.SecondaryIndicator,
		&rec.Category.ReferencePrice,
		&deviation,
		&rangeText,
		&changeText,
		&rec.StockType,
		&rec.Segment,
		&rec.DedupKey,
		&collected,
	)
	if err != nil {
		return model.StoredRecord{}, fmt.Errorf("scan record: %w", err)
	}

	rec.RunDate = runDate.Time
	rec.CollectedAt = collected.Time
	rec.TradeType = model.TradeType(tradeType)
	rec.Category.Deviation = deviation.String
	rec.Category.Range = rangeText.String
	rec.ChangeText = changeText.String
	return rec, nil
}

func formatDate(t time.Time) string {
	return t.Format(dateLayout)
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// sqlTime scans DATE and TIMESTAMP columns that come back as time.Time from
// postgres and as text from sqlite
type sqlTime struct {
	Time time.Time
}

func (t *sqlTime) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		t.Time = time.Time{}
		return nil
	case time.Time:
		t.Time = v
		return nil
	case []byte:
		return t.parse(string(v))
	case string:
		return t.parse(v)
	default:
		return fmt.Errorf("time: unsupported source type %T", src)
	}
}

func (t *sqlTime) parse(s string) error {
	s = strings.TrimSpace(s)
	for _, layout := range []string{timestampLayout, "2006-01-02 15:04:05.999999999-07:00", dateLayout} {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("time: cannot parse %q", s)
}
