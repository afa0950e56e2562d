package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Challenge strategies understood by the challenge handler.
const (
	StrategyPause   = "pause"
	StrategyWait    = "wait"
	StrategyBackoff = "backoff"
)

// Config is the settings snapshot for one monitoring run. Durations are
// expressed in (fractional) seconds in the yaml file.
type Config struct {
	ProductsFile string `yaml:"products_file"`
	BuyerFile    string `yaml:"buyer_file"`

	BrowserProfilePath string `yaml:"browser_profile_path"`
	Headless           bool   `yaml:"headless"`
	WindowWidth        int    `yaml:"window_width"`
	WindowHeight       int    `yaml:"window_height"`
	UserAgent          string `yaml:"user_agent"`
	AcceptLanguage     string `yaml:"accept_language"`
	Proxy              string `yaml:"proxy"`
	LoginURL           string `yaml:"login_url"`
	WaitForLogin       bool   `yaml:"wait_for_login"`

	MaxScrolls        int     `yaml:"max_scrolls"`
	ScrollDelay       float64 `yaml:"scroll_delay"`
	WaitForPage       float64 `yaml:"wait_for_page"`
	MinMatchScore     float64 `yaml:"min_match_score"`
	ScanLimit         int     `yaml:"scan_limit"`
	NearAncestorDepth int     `yaml:"near_ancestor_depth"`
	PostClickDelay    float64 `yaml:"post_click_delay"`

	DismissBanners              bool `yaml:"dismiss_banners"`
	AllowGlobalCTAWhenNameFound bool `yaml:"allow_global_cta_when_name_found"`
	AllowGlobalCTAAlways        bool `yaml:"allow_global_cta_always"`
	SelectSizeBeforeGlobal      bool `yaml:"select_size_before_global"`

	ChallengeStrategy     string  `yaml:"challenge_strategy"`
	ChallengePauseSeconds float64 `yaml:"challenge_pause_seconds"`
	ChallengeWaitTotal    float64 `yaml:"challenge_wait_total"`
	ChallengeWaitPoll     float64 `yaml:"challenge_wait_poll"`

	RetryDelay       float64 `yaml:"retry_delay"`
	RetryJitter      float64 `yaml:"retry_jitter"`
	PostPurchaseIdle float64 `yaml:"post_purchase_idle"`
	StopOnSuccess    bool    `yaml:"stop_on_success"`
	CloseOnFinish    bool    `yaml:"close_on_finish"`

	RespectRobots   bool   `yaml:"respect_robots"`
	BlockOnRobots   bool   `yaml:"block_on_robots"`
	RobotsUserAgent string `yaml:"robots_user_agent"`

	OrderSuccessTimeout   float64 `yaml:"order_success_timeout"`
	CheckoutCTATimeout    float64 `yaml:"checkout_cta_timeout"`
	PostCheckoutClickWait float64 `yaml:"post_checkout_click_wait"`
	ConfirmationPoll      float64 `yaml:"confirmation_poll"`

	DropTime               string `yaml:"drop_time"`
	StartBeforeDropSeconds int    `yaml:"start_before_drop_seconds"`
	SyncClock              bool   `yaml:"sync_clock"`

	DryRun    bool   `yaml:"dry_run"`
	DebugMode bool   `yaml:"debug_mode"`
	LogLevel  string `yaml:"log_level"`
	LogFile   string `yaml:"log_file"`
}

func DefaultConfig() *Config {
	userDataDir := UserDataDir()

	return &Config{
		ProductsFile:       "products.txt",
		BuyerFile:          "buyer.txt",
		BrowserProfilePath: filepath.Join(userDataDir, "browser-profile"),
		Headless:           false,
		WindowWidth:        1400,
		WindowHeight:       900,
		AcceptLanguage:     "en-US,en;q=0.9",
		WaitForLogin:       false,

		MaxScrolls:        3,
		ScrollDelay:       2,
		WaitForPage:       5,
		MinMatchScore:     0.7,
		ScanLimit:         400,
		NearAncestorDepth: 3,
		PostClickDelay:    0.5,

		DismissBanners:              true,
		AllowGlobalCTAWhenNameFound: true,
		AllowGlobalCTAAlways:        false,
		SelectSizeBeforeGlobal:      true,

		ChallengeStrategy:     StrategyPause,
		ChallengePauseSeconds: 60,
		ChallengeWaitTotal:    45,
		ChallengeWaitPoll:     3,

		RetryDelay:       8,
		RetryJitter:      4,
		PostPurchaseIdle: 15,
		StopOnSuccess:    true,
		CloseOnFinish:    false,

		RespectRobots:   false,
		BlockOnRobots:   true,
		RobotsUserAgent: "*",

		OrderSuccessTimeout:   30,
		CheckoutCTATimeout:    8,
		PostCheckoutClickWait: 2,
		ConfirmationPoll:      1,

		StartBeforeDropSeconds: 60,
		SyncClock:              true,

		DryRun:    false,
		DebugMode: false,
		LogLevel:  "info",
	}
}

func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := config.Save(path); err != nil {
			return nil, err
		}
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	if config.BrowserProfilePath != "" {
		if err := os.MkdirAll(config.BrowserProfilePath, 0755); err != nil {
			return nil, err
		}
	}

	return config, nil
}

func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Validate rejects values the engine cannot run with.
func (c *Config) Validate() error {
	if c.MaxScrolls < 1 {
		return fmt.Errorf("max_scrolls must be at least 1, got %d", c.MaxScrolls)
	}
	if c.MinMatchScore < 0 || c.MinMatchScore > 1 {
		return fmt.Errorf("min_match_score must be within [0,1], got %.2f", c.MinMatchScore)
	}
	if c.ScanLimit < 1 {
		return fmt.Errorf("scan_limit must be positive, got %d", c.ScanLimit)
	}
	if c.RetryJitter < 0 {
		return fmt.Errorf("retry_jitter must not be negative")
	}
	switch c.ChallengeStrategy {
	case StrategyPause, StrategyWait, StrategyBackoff:
	default:
		return fmt.Errorf("unknown challenge_strategy %q (want pause, wait or backoff)", c.ChallengeStrategy)
	}
	return nil
}

// Duration converts a seconds value from the config into a time.Duration.
func Duration(seconds float64) time.Duration {
	if seconds <= 0 {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}

// UserDataDir is where the browser profile and logs live by default.
func UserDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./dropwatch-data"
	}
	return filepath.Join(home, ".dropwatch")
}
