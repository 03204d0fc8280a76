// Package store persists normalized records idempotently.
//
// Every record is written in its own transaction (or savepoint inside a bulk
// transaction) and the unique (run_id, dedup_key) constraint rejects a second
// record with the same identity in one run instead of overwriting it.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"sjsage522/orbscreener/internal/dedup"
	"sjsage522/orbscreener/internal/model"
	"sjsage522/orbscreener/logger"
	apperrors "sjsage522/orbscreener/pkg/errors"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Dialect is the SQL flavour of the underlying database
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

//go:embed schema_postgres.sql
var postgresSchema string

//go:embed schema_sqlite.sql
var sqliteSchema string

// ErrDuplicate is wrapped by rejections of records whose identity key was
// already stored for the run
var ErrDuplicate = errors.New("store: duplicate record for run")

// Rejection reports a single record that was not stored
type Rejection struct {
	Record model.NormalizedRecord
	Key    string
	Err    error
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("record %s rejected: %v", r.Key, r.Err)
}

func (r *Rejection) Unwrap() error {
	return r.Err
}

// BulkResult tells the caller exactly which records of a batch were stored
type BulkResult struct {
	Succeeded  int
	Failed     int
	Stored     []model.StoredRecord
	Rejections []*Rejection
}

// Store is the persistence sink
type Store struct {
	db      *sql.DB
	dialect Dialect
	policy  dedup.Policy
	log     *logger.Logger
	now     func() time.Time
}

// Open connects to the database named by dialect and dsn
func Open(dialect Dialect, dsn string, policy dedup.Policy) (*Store, error) {
	driver, err := driverName(dialect)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, apperrors.NewFatal("store", "open database", err)
	}
	return New(db, dialect, policy), nil
}

// New wraps an open database handle. Writes are never concurrent, so the pool
// is limited to one connection, which also keeps in-memory sqlite databases alive.
func New(db *sql.DB, dialect Dialect, policy dedup.Policy) *Store {
	db.SetMaxOpenConns(1)
	return &Store{
		db:      db,
		dialect: dialect,
		policy:  policy,
		log:     logger.ForStore(),
		now:     time.Now,
	}
}

func driverName(dialect Dialect) (string, error) {
	switch dialect {
	case Postgres:
		return "pgx", nil
	case SQLite:
		return "sqlite", nil
	default:
		return "", apperrors.NewConfiguration(fmt.Sprintf("unsupported database dialect %q", dialect), nil)
	}
}

// Ping verifies the database is reachable
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return apperrors.NewFatal("store", "database unreachable", err)
	}
	return nil
}

// Close closes the database handle
func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureSchema creates the records table and its indexes if they are missing
func (s *Store) EnsureSchema(ctx context.Context) error {
	schema := postgresSchema
	if s.dialect == SQLite {
		schema = sqliteSchema
	}
	for _, stmt := range strings.Split(schema, ";") {
		if stmt = strings.TrimSpace(stmt); stmt == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return apperrors.NewFatal("store", "apply schema", err)
		}
	}
	s.log.Debug().Str("dialect", string(s.dialect)).Msg("Schema ready")
	return nil
}

// Insert stores rec in its own transaction. Any failure rolls the transaction
// back and is returned as a *Rejection.
func (s *Store) Insert(ctx context.Context, rec model.NormalizedRecord) (model.StoredRecord, error) {
	stored := s.prepare(rec)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.StoredRecord{}, s.reject(stored, "begin transaction", err)
	}

	id, err := s.insertRow(ctx, tx, stored)
	if err != nil {
		_ = tx.Rollback()
		return model.StoredRecord{}, s.reject(stored, "insert", err)
	}
	if err := tx.Commit(); err != nil {
		return model.StoredRecord{}, s.reject(stored, "commit", err)
	}

	stored.ID = id
	s.log.Debug().Int64("id", id).Str("symbol", stored.Symbol).Str("run_id", stored.RunID).Msg("Stored record")
	return stored, nil
}

// BulkInsert stores recs in one transaction with a savepoint per record, so a
// failing record is rolled back alone. If the batch transaction cannot be
// used, records are inserted one transaction at a time.
func (s *Store) BulkInsert(ctx context.Context, recs []model.NormalizedRecord) BulkResult {
	var result BulkResult
	if len(recs) == 0 {
		return result
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("Batch transaction unavailable, inserting records one by one")
		return s.insertEach(ctx, recs)
	}

	for i, rec := range recs {
		stored := s.prepare(rec)
		savepoint := "rec_" + strconv.Itoa(i)

		if _, err := tx.ExecContext(ctx, "SAVEPOINT "+savepoint); err != nil {
			result.add(nil, s.reject(stored, "savepoint", err))
			continue
		}

		id, err := s.insertRow(ctx, tx, stored)
		if err != nil {
			if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+savepoint); rbErr != nil {
				s.log.Error().Err(rbErr).Msg("Rollback to savepoint failed")
			}
			result.add(nil, s.reject(stored, "insert", err))
			continue
		}
		if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT "+savepoint); err != nil {
			result.add(nil, s.reject(stored, "release savepoint", err))
			continue
		}

		stored.ID = id
		result.add(&stored, nil)
	}

	if err := tx.Commit(); err != nil {
		// nothing of the batch survived
		failed := BulkResult{}
		for _, st := range result.Stored {
			failed.add(nil, s.reject(st, "commit", err))
		}
		failed.Rejections = append(failed.Rejections, result.Rejections...)
		failed.Failed = len(failed.Rejections)
		return failed
	}

	s.log.Info().Int("succeeded", result.Succeeded).Int("failed", result.Failed).Msg("Batch stored")
	return result
}

func (s *Store) insertEach(ctx context.Context, recs []model.NormalizedRecord) BulkResult {
	var result BulkResult
	for _, rec := range recs {
		stored, err := s.Insert(ctx, rec)
		if err != nil {
			var rej *Rejection
			if !errors.As(err, &rej) {
				rej = &Rejection{Record: rec, Err: err}
			}
			result.add(nil, rej)
			continue
		}
		result.add(&stored, nil)
	}
	return result
}

func (r *BulkResult) add(stored *model.StoredRecord, rej *Rejection) {
	if rej != nil {
		r.Failed++
		r.Rejections = append(r.Rejections, rej)
		return
	}
	r.Succeeded++
	r.Stored = append(r.Stored, *stored)
}

// prepare stamps the identity key and the collection time
func (s *Store) prepare(rec model.NormalizedRecord) model.StoredRecord {
	rec.CollectedAt = s.now().UTC()
	return model.StoredRecord{
		NormalizedRecord: rec,
		DedupKey:         s.policy.Key(rec),
	}
}

func (s *Store) reject(rec model.StoredRecord, op string, err error) *Rejection {
	rej := &Rejection{
		Record: rec.NormalizedRecord,
		Key:    rec.DedupKey,
		Err:    apperrors.NewPersistence(rec.Symbol, op, err),
	}
	if errors.Is(err, ErrDuplicate) {
		s.log.Debug().Str("symbol", rec.Symbol).Str("key", rec.DedupKey).Msg("Duplicate record rejected")
	} else {
		s.log.Error().Err(err).Str("symbol", rec.Symbol).Str("op", op).Msg("Record rejected")
	}
	return rej
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

const insertSQL = `INSERT INTO orb_records (
	run_id, run_date, strategy_label, symbol,
	last_price, absolute_change, percentage_change, trade_type,
	reference_time, duration, secondary_indicator, reference_price,
	deviation, range_text, change_text, stock_type, segment,
	dedup_key, collected_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (run_id, dedup_key) DO NOTHING
RETURNING id`

func (s *Store) insertRow(ctx context.Context, q querier, rec model.StoredRecord) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx, s.rebind(insertSQL),
		rec.RunID,
		formatDate(rec.RunDate),
		rec.StrategyLabel,
		rec.Symbol,
		rec.LastPrice,
		rec.AbsoluteChange,
		rec.PercentageChange,
		string(rec.TradeType),
		rec.Category.ReferenceTime,
		rec.Category.Duration,
		rec.Category.SecondaryIndicator,
		rec.Category.ReferencePrice,
		nullString(rec.Category.Deviation),
		nullString(rec.Category.Range),
		nullString(rec.ChangeText),
		rec.StockType,
		rec.Segment,
		rec.DedupKey,
		formatTimestamp(rec.CollectedAt),
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrDuplicate
	}
	return id, err
}

// rebind rewrites ? placeholders into the dialect's form
func (s *Store) rebind(query string) string {
	if s.dialect != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
