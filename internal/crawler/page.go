package crawler

import (
	"context"
	"strings"
	"time"

	"sjsage522/orbscreener/internal/model"
	"sjsage522/orbscreener/internal/source"
	"sjsage522/orbscreener/logger"
	apperrors "sjsage522/orbscreener/pkg/errors"
)

// PageCrawler sweeps every page of the active tab
type PageCrawler struct {
	src source.Adapter
	cfg Config
}

// NewPageCrawler creates a page crawler over src
func NewPageCrawler(src source.Adapter, cfg Config) *PageCrawler {
	return &PageCrawler{src: src, cfg: cfg}
}

// Crawl runs the pagination state machine for the active tab until DONE.
// A first page that never renders is reported as a tab error; every later
// failure ends the sweep with the rows gathered so far.
func (p *PageCrawler) Crawl(ctx context.Context, tab Tab) (CrawlResult, error) {
	log := logger.ForCrawler(tab.Label)

	var (
		res      CrawlResult
		crawlErr error
		firstRow source.Element
		seen     = make(map[string]struct{})
		state    = StateCollect
	)

	for {
		res.Trace = append(res.Trace, state)
		if state != StateDone && ctx.Err() != nil {
			crawlErr = apperrors.NewTab(tab.Label, "crawl interrupted", ctx.Err())
			state = StateDone
			continue
		}

		switch state {
		case StateCollect:
			rows, err := p.src.WaitPresent(ctx, p.cfg.RowLocator, p.cfg.RowWait)
			if err != nil || len(rows) == 0 {
				if res.Pages == 0 {
					crawlErr = apperrors.NewTab(tab.Label, "first page did not load", err)
				} else {
					log.Warn().Err(err).Int("page", res.Pages+1).Msg("Rows did not render after advancing, ending tab")
				}
				state = StateDone
				continue
			}

			res.Pages++
			firstRow = rows[0]
			kept := p.harvest(ctx, tab, rows, seen, &res)
			log.Debug().Int("page", res.Pages).Int("rows", len(rows)).Int("kept", kept).Msg("Collected page")
			state = StateAdvanceCheck

		case StateAdvanceCheck:
			state = p.advance(ctx, log, tab, res.Pages)

		case StateAdvanced:
			if !p.src.WaitStale(ctx, firstRow, p.cfg.StaleWait) {
				log.Warn().Int("page", res.Pages).Dur("wait", p.cfg.StaleWait).Msg("Page did not re-render after next, ending tab")
				state = StateDone
				continue
			}
			sleep(ctx, p.cfg.PageSettle)
			state = StateCollect

		case StateDone:
			log.Info().
				Int("pages", res.Pages).
				Int("rows", len(res.Rows)).
				Int("discarded", res.Discarded).
				Msg("Tab crawl finished")
			return res, crawlErr
		}
	}
}

// harvest reads the cells of rows, dropping empty rows and leading cells
// already seen in this tab. It returns how many rows were kept.
func (p *PageCrawler) harvest(ctx context.Context, tab Tab, rows []source.Element, seen map[string]struct{}, res *CrawlResult) int {
	kept := 0
	for _, row := range rows {
		cells, err := p.src.ReadCells(ctx, row)
		if err != nil || len(cells) == 0 {
			res.Discarded++
			continue
		}
		key := strings.TrimSpace(cells[0])
		if _, dup := seen[key]; dup {
			res.Discarded++
			continue
		}
		seen[key] = struct{}{}
		res.Rows = append(res.Rows, model.RawRow{Cells: cells, Label: tab.Label})
		kept++
	}
	return kept
}

// advance decides the ADVANCE_CHECK transition: DONE when there is no usable
// next control, ADVANCED once it was clicked.
func (p *PageCrawler) advance(ctx context.Context, log *logger.Logger, tab Tab, pages int) State {
	if p.cfg.MaxPages > 0 && pages >= p.cfg.MaxPages {
		log.Warn().Int("max_pages", p.cfg.MaxPages).Msg("Page limit reached, ending tab")
		return StateDone
	}

	controls, err := p.src.WaitPresent(ctx, p.cfg.NextLocator, p.cfg.NextWait)
	if err != nil || len(controls) == 0 {
		log.Debug().Err(err).Msg("No next page control")
		return StateDone
	}
	next := controls[0]
	if p.src.Disabled(ctx, next) {
		log.Debug().Msg("Next page control disabled")
		return StateDone
	}
	if err := p.src.Click(ctx, next); err != nil {
		log.Warn().Err(apperrors.NewPage(tab.Label, "next page click failed", err)).Msg("Ending tab")
		return StateDone
	}
	return StateAdvanced
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
