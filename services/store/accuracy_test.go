package store

import (
	"context"
	"testing"

	"sjsage522/orbscreener/internal/dedup"
	"sjsage522/orbscreener/internal/model"
	"sjsage522/orbscreener/internal/run"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func accuracyRecord(r run.Run, symbol string, tradeType model.TradeType) model.AccuracyRecord {
	return model.AccuracyRecord{
		Symbol:              symbol,
		LastPrice:           decimal.RequireFromString("1642.35"),
		AbsoluteChange:      decimal.RequireFromString("18.20"),
		PercentageChange:    decimal.RequireFromString("1.12"),
		TradeType:           tradeType,
		ChangeText:          "+18.20 (+1.12%)",
		Volume:              "2.4M",
		DeviationFromPivots: "R1 +0.35%",
		ScreenerType:        model.AccuracyScreenerType,
		RunID:               r.ID,
		RunDate:             r.Date,
	}
}

func TestBulkInsertAccuracy(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, dedup.PolicyGlobal)
	r := firstRun()

	result, err := s.BulkInsertAccuracy(ctx, []model.AccuracyRecord{
		accuracyRecord(r, "HDFCBANK", model.TradeBuy),
		accuracyRecord(r, "SBIN", model.TradeSell),
		accuracyRecord(r, "HDFCBANK", model.TradeBuy),
		accuracyRecord(r, "BAD", model.TradeType("HOLD")),
	})
	require.NoError(t, err)
	require.Len(t, result.Stored, 2)
	assert.NotZero(t, result.Stored[0].ID)
	assert.Equal(t, 1, result.Duplicates)
	assert.Equal(t, 1, result.Failed, "trade type check rolls back only its row")

	found, err := s.FindAccuracyByRun(ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, found, 2)
	got := found[0]
	assert.Equal(t, "HDFCBANK", got.Symbol)
	assert.True(t, got.LastPrice.Equal(decimal.RequireFromString("1642.35")))
	assert.Equal(t, model.TradeBuy, got.TradeType)
	assert.Equal(t, "R1 +0.35%", got.DeviationFromPivots)
	assert.Empty(t, got.Sector)
	assert.Equal(t, r.DateString(), got.RunDate.Format("2006-01-02"))
	assert.False(t, got.CollectedAt.IsZero())

	// a later run stores the same symbols again
	next, err := s.BulkInsertAccuracy(ctx, []model.AccuracyRecord{accuracyRecord(secondRun(), "HDFCBANK", model.TradeBuy)})
	require.NoError(t, err)
	assert.Len(t, next.Stored, 1)

	empty, err := s.BulkInsertAccuracy(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty.Stored)
}
