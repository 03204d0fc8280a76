package crawler

import (
	"sjsage522/orbscreener/config"
	"sjsage522/orbscreener/internal/source"
	"sjsage522/orbscreener/logger"
)

// CreateTabs turns the configured tab list into crawlable tabs. An id wins
// over an xpath, which wins over a css selector.
func CreateTabs(cfg *config.Config) []Tab {
	tabs := make([]Tab, 0, len(cfg.Tabs))
	for _, ts := range cfg.Tabs {
		tabs = append(tabs, Tab{Locator: locatorFor(ts), Label: ts.Label})
	}

	if logger.IsDebugEnabled() {
		for i, tab := range tabs {
			logger.Default.Debug().Int("index", i).Str("label", tab.Label).Str("locator", tab.Locator.String()).Msg("Configured tab")
		}
	}
	return tabs
}

// NewConfig builds the crawl configuration from the application configuration
func NewConfig(cfg *config.Config) Config {
	c := DefaultConfig()
	c.RowLocator = source.CSS(cfg.RowSelector)
	c.NextLocator = source.CSS(cfg.NextSelector)
	c.TabWait = cfg.ElementWait
	c.RowWait = cfg.ElementWait
	c.NextWait = cfg.NextWait
	c.StaleWait = cfg.StaleWait
	c.TabSettle = cfg.TabSettle
	c.PageSettle = cfg.PageSettle
	c.MaxPages = cfg.MaxPages
	return c
}

func locatorFor(ts config.TabSpec) source.Locator {
	switch {
	case ts.ID != "":
		return source.ID(ts.ID)
	case ts.XPath != "":
		return source.XPath(ts.XPath)
	default:
		return source.CSS(ts.CSS)
	}
}
