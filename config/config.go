package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	apperrors "sjsage522/orbscreener/pkg/errors"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	// Screener session
	Email       string
	Password    string
	LoginURL    string
	PageURL     string
	Headless    bool
	ChromePath  string
	ChromeFlags []string
	Proxies     []string

	// ReplayDir switches the source to saved pages under dir/<tab id>/*.html
	ReplayDir string

	// Run identity
	TimeZone string

	// Crawl
	TabsFile     string
	Tabs         []TabSpec
	RowSelector  string
	CellSelector string
	NextSelector string
	MaxPages     int

	// Waits
	LoginWait   time.Duration
	ElementWait time.Duration
	NextWait    time.Duration
	StaleWait   time.Duration
	TabSettle   time.Duration
	PageSettle  time.Duration

	// Accuracy CSV export; an empty AccuracyURL skips it
	AccuracyURL     string
	AccuracyControl string
	AccuracyWait    time.Duration

	// Normalization and dedup
	DedupPolicy string

	// Persistence
	DBDriver   string
	DBDSN      string
	BulkInsert bool

	// Memcache configuration; empty disables the shared seen-key set
	MemcacheAddr string

	// Redis configuration; empty disables publishing
	RedisAddr            string
	RedisDB              int
	RedisStream          string
	RedisStreamMaxLength int

	// Scheduling; empty runs once and exits
	Schedule string

	// Environment
	Environment string
}

// TabSpec describes one category tab as it appears in the tabs file
type TabSpec struct {
	ID    string `yaml:"id"`
	XPath string `yaml:"xpath,omitempty"`
	CSS   string `yaml:"css,omitempty"`
	Label string `yaml:"label"`
}

type tabsFile struct {
	Tabs []TabSpec `yaml:"tabs"`
}

// DefaultTabs are the opening range breakout views in screen order
var DefaultTabs = []TabSpec{
	{ID: "pills-home-15min", Label: "ORB+PRB 15"},
	{ID: "pills-home-15minp", Label: "ORB 15"},
	{ID: "pills-home-30min", Label: "ORB+PRB 30"},
	{ID: "pills-home-30minp", Label: "ORB 30"},
	{ID: "pills-home-45min", Label: "ORB+PRB 45"},
	{ID: "pills-home-45minp", Label: "ORB 45"},
	{ID: "pills-home-60min", Label: "ORB+PRB 60"},
	{ID: "pills-home-60minp", Label: "ORB 60"},
}

// LoadConfig loads the configuration from environment variables with defaults
func LoadConfig() *Config {
	return &Config{
		Email:                os.Getenv("ORB_EMAIL"),
		Password:             os.Getenv("ORB_PASSWORD"),
		LoginURL:             getEnv("ORB_LOGIN_URL", "https://intradayscreener.com/login"),
		PageURL:              getEnv("ORB_PAGE_URL", "https://intradayscreener.com/opening-range-breakout"),
		Headless:             getBool("ORB_HEADLESS", true),
		ChromePath:           os.Getenv("ORB_CHROME_PATH"),
		ChromeFlags:          getList("ORB_CHROME_FLAGS"),
		Proxies:              getList("ORB_PROXIES"),
		ReplayDir:            os.Getenv("ORB_REPLAY_DIR"),
		TimeZone:             getEnv("ORB_TIMEZONE", "Asia/Kolkata"),
		TabsFile:             os.Getenv("ORB_TABS_FILE"),
		Tabs:                 DefaultTabs,
		RowSelector:          getEnv("ORB_ROW_SELECTOR", "mat-row"),
		CellSelector:         getEnv("ORB_CELL_SELECTOR", "mat-cell"),
		NextSelector:         getEnv("ORB_NEXT_SELECTOR", "button.mat-mdc-paginator-navigation-next"),
		MaxPages:             getInt("ORB_MAX_PAGES", 200),
		LoginWait:            getSeconds("ORB_LOGIN_WAIT_SECONDS", 30),
		ElementWait:          getSeconds("ORB_WAIT_SECONDS", 30),
		NextWait:             getSeconds("ORB_NEXT_WAIT_SECONDS", 5),
		StaleWait:            getSeconds("ORB_STALE_WAIT_SECONDS", 10),
		TabSettle:            getSeconds("ORB_TAB_SETTLE_SECONDS", 2),
		PageSettle:           getSeconds("ORB_PAGE_SETTLE_SECONDS", 1),
		AccuracyURL:          os.Getenv("ORB_ACCURACY_URL"),
		AccuracyControl:      getEnv("ORB_ACCURACY_CONTROL_XPATH", "//*[contains(text(),'CSV')]"),
		AccuracyWait:         getSeconds("ORB_ACCURACY_WAIT_SECONDS", 20),
		DedupPolicy:          getEnv("ORB_DEDUP_POLICY", "global"),
		DBDriver:             getEnv("DB_DRIVER", "postgres"),
		DBDSN:                os.Getenv("DB_DSN"),
		BulkInsert:           getBool("DB_BULK_INSERT", true),
		MemcacheAddr:         os.Getenv("MEMCACHE_ADDR"),
		RedisAddr:            os.Getenv("REDIS_ADDR"),
		RedisDB:              getInt("REDIS_DB", 0),
		RedisStream:          getEnv("REDIS_STREAM", "orb_records"),
		RedisStreamMaxLength: getInt("REDIS_STREAM_MAX_LENGTH", 10000),
		Schedule:             os.Getenv("ORB_SCHEDULE"),
		Environment:          getEnv("ORB_ENVIRONMENT", "development"),
	}
}

// LoadTabs replaces the default tab list with the contents of TabsFile, if set
func (c *Config) LoadTabs() error {
	if c.TabsFile == "" {
		return nil
	}
	data, err := os.ReadFile(c.TabsFile)
	if err != nil {
		return apperrors.NewConfiguration("read tabs file", err)
	}
	var f tabsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return apperrors.NewConfiguration("parse tabs file", err)
	}
	if len(f.Tabs) == 0 {
		return apperrors.NewConfiguration(fmt.Sprintf("tabs file %s lists no tabs", c.TabsFile), nil)
	}
	c.Tabs = f.Tabs
	return nil
}

// Validate checks that the configuration can drive a run
func (c *Config) Validate() error {
	if c.ReplayDir == "" && (c.Email == "" || c.Password == "") {
		return apperrors.NewConfiguration("ORB_EMAIL and ORB_PASSWORD are required", nil)
	}
	if c.DBDSN == "" {
		return apperrors.NewConfiguration("DB_DSN is required", nil)
	}
	switch c.DBDriver {
	case "postgres", "sqlite":
	default:
		return apperrors.NewConfiguration(fmt.Sprintf("unsupported DB_DRIVER %q", c.DBDriver), nil)
	}
	switch c.DedupPolicy {
	case "global", "per-category":
	default:
		return apperrors.NewConfiguration(fmt.Sprintf("unsupported ORB_DEDUP_POLICY %q", c.DedupPolicy), nil)
	}
	for i, tab := range c.Tabs {
		if tab.Label == "" {
			return apperrors.NewConfiguration(fmt.Sprintf("tab %d has no label", i), nil)
		}
		if tab.ID == "" && tab.XPath == "" && tab.CSS == "" {
			return apperrors.NewConfiguration(fmt.Sprintf("tab %q has no locator", tab.Label), nil)
		}
	}
	if c.MaxPages <= 0 {
		return apperrors.NewConfiguration("ORB_MAX_PAGES must be positive", nil)
	}
	return nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getBool(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getSeconds(key string, defaultSeconds int) time.Duration {
	return time.Duration(getInt(key, defaultSeconds)) * time.Second
}

func getList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
