package normalize

import (
	"strings"
	"testing"
	"time"

	"sjsage522/orbscreener/internal/model"
	"sjsage522/orbscreener/internal/run"
	apperrors "sjsage522/orbscreener/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAccuracyCSV(t *testing.T) {
	r := run.New(time.Date(2026, 3, 2, 4, 12, 0, 0, time.UTC), time.FixedZone("IST", 5*3600+30*60))
	data := "Symbol,LTP,Volume,Deviation From Pivots,Sector\n" +
		"HDFCBANK,\"1,642.35\n+18.20 (+1.12%)\",2.4M,R1 +0.35%,Banking\n" +
		"SBIN,\"780.10\n-4.05 (-0.52%)\",5.1M,S1 -0.10%\n" +
		",\"10.00\n+1.00 (+10.00%)\",1K,P,Misc\n" +
		"ITC,n/a,900K,P,FMCG\n"

	recs, rejects, err := ParseAccuracyCSV(strings.NewReader(data), r)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.Len(t, rejects, 2)

	hdfc := recs[0]
	assert.Equal(t, "HDFCBANK", hdfc.Symbol)
	assert.True(t, hdfc.LastPrice.Equal(dec("1642.35")))
	assert.True(t, hdfc.AbsoluteChange.Equal(dec("18.20")))
	assert.True(t, hdfc.PercentageChange.Equal(dec("1.12")))
	assert.Equal(t, model.TradeBuy, hdfc.TradeType)
	assert.Equal(t, "2.4M", hdfc.Volume)
	assert.Equal(t, "R1 +0.35%", hdfc.DeviationFromPivots)
	assert.Equal(t, "Banking", hdfc.Sector)
	assert.Equal(t, model.AccuracyScreenerType, hdfc.ScreenerType)
	assert.Equal(t, "2026-03-02T09:40", hdfc.RunID)
	assert.Equal(t, r.Date, hdfc.RunDate)

	assert.Equal(t, model.TradeSell, recs[1].TradeType)
	assert.Empty(t, recs[1].Sector, "short rows leave trailing columns empty")

	assert.Equal(t, apperrors.ErrorTypeRecord, apperrors.TypeOf(rejects[0]))
	assert.True(t, IsPriceError(rejects[1]))
}

func TestParseAccuracyCSVEmptyAndBroken(t *testing.T) {
	r := run.New(time.Date(2026, 3, 2, 4, 12, 0, 0, time.UTC), time.UTC)

	recs, rejects, err := ParseAccuracyCSV(strings.NewReader(""), r)
	require.NoError(t, err)
	assert.Empty(t, recs)
	assert.Empty(t, rejects)

	_, _, err = ParseAccuracyCSV(strings.NewReader("Symbol,LTP\nTCS,\"unterminated\n"), r)
	assert.Error(t, err)
}
