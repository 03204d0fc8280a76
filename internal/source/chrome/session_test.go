package chrome

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"os/exec"
	"testing"
	"time"

	"sjsage522/orbscreener/internal/source"
	"sjsage522/orbscreener/logger"

	"github.com/chromedp/chromedp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const screenerPage = `<html><body><mat-table>
<mat-row><mat-cell>TCS</mat-cell><mat-cell>3,801.00<br>-20.00 (-0.52%)</mat-cell></mat-row>
<mat-row><mat-cell>INFY</mat-cell><mat-cell>1,500.00<br>+3.00 (+0.20%)</mat-cell></mat-row>
</mat-table>
<button class="next" disabled>next</button>
</body></html>`

// chromePath finds a local Chrome, skipping the test when there is none
func chromePath(t *testing.T) string {
	t.Helper()
	if path := os.Getenv("ORB_CHROME_PATH"); path != "" {
		return path
	}
	for _, name := range []string{"chromium", "chromium-browser", "google-chrome", "google-chrome-stable", "headless-shell"} {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	t.Skip("Chrome is not available, skipping browser session test")
	return ""
}

func startSession(t *testing.T) *Adapter {
	t.Helper()
	opts := DefaultOptions()
	opts.ExecPath = chromePath(t)

	a := newAdapter(opts, logger.Nop())
	t.Cleanup(func() { a.Close() })
	require.NoError(t, a.start(context.Background()))
	return a
}

func TestSessionOutlivesBoundedWaits(t *testing.T) {
	a := startSession(t)
	ctx := context.Background()

	// an expired wait ends only its own context
	_, err := a.WaitPresent(ctx, source.CSS("mat-row"), 300*time.Millisecond)
	assert.True(t, errors.Is(err, source.ErrTimeout), "got %v", err)
	require.NoError(t, a.ctx.Err(), "browser session was cancelled by a bounded wait")

	require.NoError(t, chromedp.Run(a.ctx, chromedp.Navigate("data:text/html,"+url.PathEscape(screenerPage))))

	rows, err := a.WaitPresent(ctx, source.CSS("mat-row"), 5*time.Second)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	cells, err := a.ReadCells(ctx, rows[0])
	require.NoError(t, err)
	assert.Equal(t, []string{"TCS", "3,801.00\n-20.00 (-0.52%)"}, cells)

	next, err := a.WaitPresent(ctx, source.CSS("button.next"), 5*time.Second)
	require.NoError(t, err)
	assert.True(t, a.Disabled(ctx, next[0]))
	require.NoError(t, a.ctx.Err())
}

func TestStartWithCancelledContext(t *testing.T) {
	a := newAdapter(DefaultOptions(), logger.Nop())
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, a.start(ctx))
}

func TestExportCSVDownloadsFile(t *testing.T) {
	const export = "Symbol,LTP\nTCS,3801.00\n"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/export.csv" {
			w.Header().Set("Content-Type", "text/csv")
			w.Header().Set("Content-Disposition", `attachment; filename="Intraday 100% Accuracy.csv"`)
			fmt.Fprint(w, export)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><a href="/export.csv">CSV</a></body></html>`)
	}))
	defer srv.Close()

	a := startSession(t)
	data, err := a.ExportCSV(context.Background(), srv.URL+"/scan", source.XPath("//*[contains(text(),'CSV')]"), 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, export, string(data))
	require.NoError(t, a.ctx.Err())
}
