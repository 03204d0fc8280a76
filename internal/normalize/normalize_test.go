package normalize

import (
	"errors"
	"testing"
	"time"

	"sjsage522/orbscreener/internal/model"
	"sjsage522/orbscreener/internal/run"
	apperrors "sjsage522/orbscreener/pkg/errors"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestParsePriceCell(t *testing.T) {
	cell, err := ParsePriceCell("123.45\n+2.10 (+1.73%)")
	require.NoError(t, err)
	assert.True(t, cell.Price.Equal(dec("123.45")))
	assert.True(t, cell.AbsoluteChange.Equal(dec("2.10")))
	assert.True(t, cell.PercentageChange.Equal(dec("1.73")))
	assert.Equal(t, "+2.10 (+1.73%)", cell.ChangeText)
	assert.Equal(t, model.TradeBuy, model.TradeTypeFor(cell.PercentageChange))

	cell, err = ParsePriceCell("80.00\n-4.00 (-5.00%)")
	require.NoError(t, err)
	assert.True(t, cell.AbsoluteChange.Equal(dec("-4.00")))
	assert.True(t, cell.PercentageChange.Equal(dec("-5.00")))
	assert.Equal(t, model.TradeSell, model.TradeTypeFor(cell.PercentageChange))

	cell, err = ParsePriceCell("  2,450.10 \r\n +12.40   (+0.51%) ")
	require.NoError(t, err)
	assert.True(t, cell.Price.Equal(dec("2450.10")))
	assert.True(t, cell.PercentageChange.Equal(dec("0.51")))

	cell, err = ParsePriceCell("50.00\n0.00 (0.00%)")
	require.NoError(t, err)
	assert.Equal(t, model.TradeSell, model.TradeTypeFor(cell.PercentageChange), "zero change is not a buy")
}

func TestParsePriceCellKeepsEveryChangeLine(t *testing.T) {
	cell, err := ParsePriceCell("123.45\n+2.10 (+1.73%)\nVol 1.2x\n")
	require.NoError(t, err)
	assert.True(t, cell.PercentageChange.Equal(dec("1.73")))
	assert.Equal(t, "+2.10 (+1.73%),Vol 1.2x", cell.ChangeText)
}

func TestParsePriceCellFailures(t *testing.T) {
	cases := map[string]string{
		"empty":           "",
		"no change line":  "123.45",
		"bad price":       "abc\n+2.10 (+1.73%)",
		"one token":       "123.45\n+2.10",
		"bad absolute":    "123.45\nup (+1.73%)",
		"bad percentage":  "123.45\n+2.10 (n/a)",
		"whitespace only": " \n \n",
	}
	for name, text := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParsePriceCell(text)
			require.Error(t, err)
			var pe *PriceParseError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, text, pe.Text)
		})
	}
}

func TestParseClockTime(t *testing.T) {
	ct := ParseClockTime("09:15 AM")
	assert.True(t, ct.Valid)
	assert.Equal(t, 9, ct.Hour)
	assert.Equal(t, 15, ct.Minute)

	ct = ParseClockTime("02:45 PM")
	assert.Equal(t, model.NewClockTime(14, 45), ct)

	assert.Equal(t, model.NewClockTime(0, 5), ParseClockTime("12:05 am"))
	assert.Equal(t, model.NewClockTime(12, 0), ParseClockTime("12:00 PM"))
	assert.Equal(t, model.NewClockTime(9, 30), ParseClockTime(" 9:30  am "))

	assert.False(t, ParseClockTime("").Valid)
	assert.False(t, ParseClockTime("--").Valid)
	assert.False(t, ParseClockTime("25:99 PM").Valid)
	assert.False(t, ParseClockTime("14:45").Valid, "24-hour times have no meridiem")
	assert.False(t, ParseClockTime("09:30AM").Valid)
}

func TestParseLabel(t *testing.T) {
	duration, secondary := ParseLabel("ORB+PRB 15")
	assert.Equal(t, 15, duration)
	assert.True(t, secondary)

	duration, secondary = ParseLabel("ORB 30")
	assert.Equal(t, 30, duration)
	assert.False(t, secondary)

	duration, secondary = ParseLabel("ORB")
	assert.Zero(t, duration)
	assert.False(t, secondary)
}

func testRun() run.Run {
	return run.New(time.Date(2026, 3, 2, 4, 17, 0, 0, time.UTC), time.FixedZone("IST", 5*3600+30*60))
}

func TestNormalize(t *testing.T) {
	n := New(testRun(), DefaultLayout)

	rec, err := n.Normalize(model.RawRow{
		Cells: []string{"RELIANCE", "2,450.10\n+12.40 (+0.51%)", "x", "2,440.00", "09:30 AM", "0.42%", "2430-2440"},
		Label: "ORB+PRB 15",
	})
	require.NoError(t, err)

	assert.Equal(t, "RELIANCE", rec.Symbol)
	assert.True(t, rec.LastPrice.Equal(dec("2450.10")))
	assert.Equal(t, model.TradeBuy, rec.TradeType)
	assert.Equal(t, "+12.40 (+0.51%)", rec.ChangeText)
	assert.True(t, rec.Category.ReferencePrice.Valid)
	assert.True(t, rec.Category.ReferencePrice.Decimal.Equal(dec("2440")))
	assert.Equal(t, model.NewClockTime(9, 30), rec.Category.ReferenceTime)
	assert.Equal(t, "0.42%", rec.Category.Deviation)
	assert.Equal(t, "2430-2440", rec.Category.Range)
	assert.Equal(t, 15, rec.Category.Duration)
	assert.True(t, rec.Category.SecondaryIndicator)
	assert.Equal(t, "ORB+PRB 15", rec.StrategyLabel)
	assert.Equal(t, model.DefaultStockType, rec.StockType)
	assert.Equal(t, model.DefaultSegment, rec.Segment)
	assert.Equal(t, "2026-03-02T09:40", rec.RunID)
	assert.True(t, testRun().Date.Equal(rec.RunDate))
}

func TestNormalizeMissingOptionalFields(t *testing.T) {
	n := New(testRun(), DefaultLayout)

	rec, err := n.Normalize(model.RawRow{
		Cells: []string{"TCS", "3,801.00\n-20.00 (-0.52%)"},
		Label: "ORB 30",
	})
	require.NoError(t, err)
	assert.Equal(t, model.TradeSell, rec.TradeType)
	assert.False(t, rec.Category.ReferencePrice.Valid)
	assert.False(t, rec.Category.ReferenceTime.Valid)
	assert.Empty(t, rec.Category.Deviation)
	assert.Equal(t, 30, rec.Category.Duration)
	assert.False(t, rec.Category.SecondaryIndicator)

	rec, err = n.Normalize(model.RawRow{
		Cells: []string{"INFY", "1,500.00\n+3.00 (+0.20%)", "", "n/a", "later"},
		Label: "ORB 45",
	})
	require.NoError(t, err)
	assert.False(t, rec.Category.ReferencePrice.Valid)
	assert.False(t, rec.Category.ReferenceTime.Valid)
}

func TestNormalizeRejections(t *testing.T) {
	n := New(testRun(), DefaultLayout)

	_, err := n.Normalize(model.RawRow{Cells: []string{"", "100.00\n+1.00 (+1.00%)"}, Label: "ORB 15"})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrorTypeRecord, apperrors.TypeOf(err))

	_, err = n.Normalize(model.RawRow{Label: "ORB 15"})
	require.Error(t, err)

	_, err = n.Normalize(model.RawRow{Cells: []string{"WIPRO", "450.00"}, Label: "ORB 15"})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrorTypeRecord, apperrors.TypeOf(err))
	assert.True(t, IsPriceError(err))

	assert.Equal(t, Stats{Rejected: 3, MissingSymbol: 2, BadPrice: 1}, n.Stats())
}

func TestNormalizeAll(t *testing.T) {
	n := New(testRun(), DefaultLayout)
	records := n.NormalizeAll([]model.RawRow{
		{Cells: []string{"A", "1.00\n+0.10 (+10.00%)"}, Label: "ORB 15"},
		{Cells: []string{"", "1.00\n+0.10 (+10.00%)"}, Label: "ORB 15"},
		{Cells: []string{"B", "garbage"}, Label: "ORB 15"},
		{Cells: []string{"C", "2.00\n-0.10 (-5.00%)"}, Label: "ORB+PRB 60"},
	})

	require.Len(t, records, 2)
	assert.Equal(t, "A", records[0].Symbol)
	assert.Equal(t, "C", records[1].Symbol)
	assert.Equal(t, 60, records[1].Category.Duration)
	assert.Equal(t, 2, n.Stats().Accepted)
	assert.Equal(t, 2, n.Stats().Rejected)
}

func TestCustomLayout(t *testing.T) {
	layout := Layout{Symbol: 1, Price: 0, ReferencePrice: -1, ReferenceTime: -1, Deviation: -1, Range: -1}
	n := New(testRun(), layout)

	rec, err := n.Normalize(model.RawRow{Cells: []string{"10.00\n+1.00 (+11.11%)", "SBIN", "ignored"}, Label: "ORB 15"})
	require.NoError(t, err)
	assert.Equal(t, "SBIN", rec.Symbol)
	assert.Empty(t, rec.Category.Range)
}
