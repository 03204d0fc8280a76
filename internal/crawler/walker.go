package crawler

import (
	"context"

	"sjsage522/orbscreener/internal/model"
	"sjsage522/orbscreener/internal/source"
	"sjsage522/orbscreener/logger"
	apperrors "sjsage522/orbscreener/pkg/errors"
)

// TabWalker activates each configured tab in order and sweeps its pages
type TabWalker struct {
	src     source.Adapter
	cfg     Config
	crawler *PageCrawler
}

// NewTabWalker creates a walker over src
func NewTabWalker(src source.Adapter, cfg Config) *TabWalker {
	return &TabWalker{
		src:     src,
		cfg:     cfg,
		crawler: NewPageCrawler(src, cfg),
	}
}

// Walk visits tabs in order and returns every collected row in source order.
// A failing tab is logged and contributes no rows; it is never retried.
func (w *TabWalker) Walk(ctx context.Context, tabs []Tab) ([]model.RawRow, []TabResult) {
	var (
		rows    []model.RawRow
		results = make([]TabResult, 0, len(tabs))
	)

	for _, tab := range tabs {
		if ctx.Err() != nil {
			results = append(results, TabResult{Label: tab.Label, Err: apperrors.NewTab(tab.Label, "walk interrupted", ctx.Err())})
			continue
		}

		result := w.walkTab(ctx, tab)
		rows = append(rows, result.rows...)
		results = append(results, result.TabResult)
	}
	return rows, results
}

type tabOutcome struct {
	TabResult
	rows []model.RawRow
}

func (w *TabWalker) walkTab(ctx context.Context, tab Tab) tabOutcome {
	log := logger.ForCrawler(tab.Label)
	out := tabOutcome{TabResult: TabResult{Label: tab.Label}}

	if err := w.src.ActivateTab(ctx, tab.Locator, w.cfg.TabWait); err != nil {
		out.Err = apperrors.NewTab(tab.Label, "tab could not be activated", err)
		log.Error().Err(out.Err).Str("locator", tab.Locator.String()).Msg("Skipping tab")
		return out
	}
	sleep(ctx, w.cfg.TabSettle)

	res, err := w.crawler.Crawl(ctx, tab)
	out.Pages = res.Pages
	out.Discarded = res.Discarded
	if err != nil {
		out.Err = err
		log.Error().Err(err).Msg("Tab yielded no rows")
		return out
	}
	out.rows = res.Rows
	out.Rows = len(res.Rows)
	return out
}
