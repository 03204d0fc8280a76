package crawler

import (
	"context"
	"testing"

	"sjsage522/orbscreener/internal/source"
	apperrors "sjsage522/orbscreener/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var tab15 = Tab{Locator: source.ID("pills-home-15min"), Label: "ORB+PRB 15"}

func countState(trace []State, s State) int {
	n := 0
	for _, t := range trace {
		if t == s {
			n++
		}
	}
	return n
}

func crawl(t *testing.T, src *fakeSource, cfg Config) (CrawlResult, error) {
	t.Helper()
	require.NoError(t, src.ActivateTab(context.Background(), tab15.Locator, 0))
	return NewPageCrawler(src, cfg).Crawl(context.Background(), tab15)
}

func TestCrawlTerminatesAfterEveryPage(t *testing.T) {
	for _, n := range []int{1, 2, 3, 7} {
		src := newFakeSource()
		src.tabs[tab15.Locator] = pages("S", n, 4)

		res, err := crawl(t, src, testConfig())
		require.NoError(t, err)

		assert.Equal(t, n, res.Pages)
		assert.Len(t, res.Rows, n*4)
		assert.Equal(t, n, countState(res.Trace, StateCollect))
		assert.Equal(t, StateDone, res.Trace[len(res.Trace)-1])
		assert.Len(t, res.Trace, 3*n, "trace %v", res.Trace)
		assert.Equal(t, n-1, src.clicks)
	}
}

func TestCrawlKeepsSourceOrder(t *testing.T) {
	src := newFakeSource()
	src.tabs[tab15.Locator] = pages("S", 2, 2)

	res, err := crawl(t, src, testConfig())
	require.NoError(t, err)

	var symbols []string
	for _, row := range res.Rows {
		symbols = append(symbols, row.Symbol())
		assert.Equal(t, tab15.Label, row.Label)
	}
	assert.Equal(t, []string{"S0", "S1", "S2", "S3"}, symbols)
}

func TestCrawlZeroPages(t *testing.T) {
	src := newFakeSource()
	src.tabs[tab15.Locator] = nil

	res, err := crawl(t, src, testConfig())
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrorTypeTab, apperrors.TypeOf(err))
	assert.Equal(t, []State{StateCollect, StateDone}, res.Trace)
	assert.Zero(t, res.Pages)
	assert.Empty(t, res.Rows)
}

func TestCrawlNextAlwaysDisabled(t *testing.T) {
	src := newFakeSource()
	src.tabs[tab15.Locator] = pages("S", 3, 2)
	src.nextDisabled = true

	res, err := crawl(t, src, testConfig())
	require.NoError(t, err)
	assert.Equal(t, []State{StateCollect, StateAdvanceCheck, StateDone}, res.Trace)
	assert.Equal(t, 1, res.Pages)
	assert.Zero(t, src.clicks)
}

func TestCrawlNoNextControl(t *testing.T) {
	src := newFakeSource()
	src.tabs[tab15.Locator] = pages("S", 3, 2)
	src.noNext = true

	res, err := crawl(t, src, testConfig())
	require.NoError(t, err)
	assert.Equal(t, []State{StateCollect, StateAdvanceCheck, StateDone}, res.Trace)
	assert.Len(t, res.Rows, 2)
}

func TestCrawlStaleTimeoutEndsTab(t *testing.T) {
	src := newFakeSource()
	src.tabs[tab15.Locator] = pages("S", 3, 2)
	src.neverStale = true

	res, err := crawl(t, src, testConfig())
	require.NoError(t, err)
	assert.Equal(t, []State{StateCollect, StateAdvanceCheck, StateAdvanced, StateDone}, res.Trace)
	assert.Equal(t, 1, res.Pages)
}

func TestCrawlEnabledNextOnLastPage(t *testing.T) {
	src := newFakeSource()
	src.tabs[tab15.Locator] = pages("S", 2, 2)
	src.lastEnabled = true

	// clicking next on the last page re-renders nothing, so the stale wait ends the tab
	res, err := crawl(t, src, testConfig())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Pages)
	assert.Equal(t, StateAdvanced, res.Trace[len(res.Trace)-2])
	assert.Equal(t, StateDone, res.Trace[len(res.Trace)-1])
}

func TestCrawlMaxPages(t *testing.T) {
	src := newFakeSource()
	src.tabs[tab15.Locator] = pages("S", 10, 1)
	cfg := testConfig()
	cfg.MaxPages = 3

	res, err := crawl(t, src, cfg)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Pages)
	assert.Len(t, res.Rows, 3)
}

func TestCrawlDiscardsEmptyAndRepeatedRows(t *testing.T) {
	src := newFakeSource()
	src.tabs[tab15.Locator] = [][][]string{
		{{"TCS", "1"}, {}, {"INFY", "2"}},
		{{"TCS", "3"}, {" INFY ", "4"}, {"WIPRO", "5"}},
	}

	res, err := crawl(t, src, testConfig())
	require.NoError(t, err)
	require.Len(t, res.Rows, 3)
	assert.Equal(t, "TCS", res.Rows[0].Symbol())
	assert.Equal(t, "1", res.Rows[0].Cells[1], "first occurrence wins")
	assert.Equal(t, "WIPRO", res.Rows[2].Symbol())
	assert.Equal(t, 3, res.Discarded)
}

func TestCrawlCancelled(t *testing.T) {
	src := newFakeSource()
	src.tabs[tab15.Locator] = pages("S", 3, 1)
	require.NoError(t, src.ActivateTab(context.Background(), tab15.Locator, 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := NewPageCrawler(src, testConfig()).Crawl(ctx, tab15)
	require.Error(t, err)
	assert.Equal(t, StateDone, res.Trace[len(res.Trace)-1])
	assert.Empty(t, res.Rows)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "COLLECT", StateCollect.String())
	assert.Equal(t, "ADVANCE_CHECK", StateAdvanceCheck.String())
	assert.Equal(t, "ADVANCED", StateAdvanced.String())
	assert.Equal(t, "DONE", StateDone.String())
	assert.Equal(t, "UNKNOWN", State(42).String())
}
