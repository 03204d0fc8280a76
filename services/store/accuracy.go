package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"sjsage522/orbscreener/internal/model"
	apperrors "sjsage522/orbscreener/pkg/errors"
)

// AccuracyResult counts what one accuracy batch did
type AccuracyResult struct {
	Stored     []model.AccuracyRecord
	Duplicates int
	Failed     int
}

const insertAccuracySQL = `INSERT INTO accuracy_records (
	run_id, run_date, screener_type, symbol,
	last_price, absolute_change, percentage_change, trade_type,
	change_text, volume, deviation_from_pivots, sector, collected_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (run_id, symbol) DO NOTHING
RETURNING id`

// BulkInsertAccuracy stores recs in one transaction with a savepoint per row.
// A symbol already stored for the run is counted as a duplicate, never updated.
func (s *Store) BulkInsertAccuracy(ctx context.Context, recs []model.AccuracyRecord) (AccuracyResult, error) {
	var result AccuracyResult
	if len(recs) == 0 {
		return result, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return result, apperrors.NewPersistence("", "begin accuracy batch", err)
	}

	collectedAt := s.now().UTC()
	for i, rec := range recs {
		rec.CollectedAt = collectedAt
		savepoint := "acc_" + strconv.Itoa(i)
		if _, err := tx.ExecContext(ctx, "SAVEPOINT "+savepoint); err != nil {
			_ = tx.Rollback()
			return AccuracyResult{}, apperrors.NewPersistence(rec.Symbol, "savepoint", err)
		}

		id, err := s.insertAccuracyRow(ctx, tx, rec)
		if err != nil {
			if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+savepoint); rbErr != nil {
				_ = tx.Rollback()
				return AccuracyResult{}, apperrors.NewPersistence(rec.Symbol, "rollback to savepoint", rbErr)
			}
			if errors.Is(err, ErrDuplicate) {
				result.Duplicates++
				continue
			}
			result.Failed++
			s.log.Error().Err(err).Str("symbol", rec.Symbol).Msg("Accuracy record rejected")
			continue
		}
		if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT "+savepoint); err != nil {
			_ = tx.Rollback()
			return AccuracyResult{}, apperrors.NewPersistence(rec.Symbol, "release savepoint", err)
		}
		rec.ID = id
		result.Stored = append(result.Stored, rec)
	}

	if err := tx.Commit(); err != nil {
		return AccuracyResult{}, apperrors.NewPersistence("", "commit accuracy batch", err)
	}
	s.log.Info().
		Int("stored", len(result.Stored)).
		Int("duplicates", result.Duplicates).
		Int("failed", result.Failed).
		Msg("Accuracy batch stored")
	return result, nil
}

// FindAccuracyByRun returns the accuracy rows stored for runID, oldest first
func (s *Store) FindAccuracyByRun(ctx context.Context, runID string) ([]model.AccuracyRecord, error) {
	query := `SELECT id, run_id, run_date, screener_type, symbol,
		last_price, absolute_change, percentage_change, trade_type,
		change_text, volume, deviation_from_pivots, sector, collected_at
		FROM accuracy_records WHERE run_id = ? ORDER BY id`
	rows, err := s.db.QueryContext(ctx, s.rebind(query), runID)
	if err != nil {
		return nil, fmt.Errorf("query accuracy records: %w", err)
	}
	defer rows.Close()

	var records []model.AccuracyRecord
	for rows.Next() {
		var (
			rec                                   model.AccuracyRecord
			runDate, collected                    sqlTime
			tradeType                             string
			changeText, volume, deviation, sector sql.NullString
		)
		err := rows.Scan(
			&rec.ID, &rec.RunID, &runDate, &rec.ScreenerType, &rec.Symbol,
			&rec.LastPrice, &rec.AbsoluteChange, &rec.PercentageChange, &tradeType,
			&changeText, &volume, &deviation, &sector, &collected,
		)
		if err != nil {
			return nil, fmt.Errorf("scan accuracy record: %w", err)
		}
		rec.RunDate = runDate.Time
		rec.CollectedAt = collected.Time
		rec.TradeType = model.TradeType(tradeType)
		rec.ChangeText = changeText.String
		rec.Volume = volume.String
		rec.DeviationFromPivots = deviation.String
		rec.Sector = sector.String
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accuracy records: %w", err)
	}
	return records, nil
}

func (s *Store) insertAccuracyRow(ctx context.Context, q querier, rec model.AccuracyRecord) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx, s.rebind(insertAccuracySQL),
		rec.RunID,
		formatDate(rec.RunDate),
		rec.ScreenerType,
		rec.Symbol,
		rec.LastPrice,
		rec.AbsoluteChange,
		rec.PercentageChange,
		string(rec.TradeType),
		nullString(rec.ChangeText),
		nullString(rec.Volume),
		nullString(rec.DeviationFromPivots),
		nullString(rec.Sector),
		formatTimestamp(rec.CollectedAt),
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrDuplicate
	}
	return id, err
}
