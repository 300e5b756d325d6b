// Package config loads profilex settings from a YAML file, overlays
// credentials from the environment (optionally seeded from a .env file)
// and converts the result into a pipeline configuration.
package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/profilex/aggregate"
	"github.com/hazyhaar/profilex/apifetch"
	"github.com/hazyhaar/profilex/browser"
	"github.com/hazyhaar/profilex/credential"
	"github.com/hazyhaar/profilex/fault"
	"github.com/hazyhaar/profilex/pipeline"
	"github.com/hazyhaar/profilex/source/github"
	"github.com/hazyhaar/profilex/source/linkedin"
)

// Config is the top-level configuration.
type Config struct {
	Sources            []string            `yaml:"sources"`
	PerSourceTimeout   time.Duration       `yaml:"per_source_timeout"`
	RunTimeout         time.Duration       `yaml:"run_timeout"`
	MaxRetries         int                 `yaml:"max_retries"`
	CaptureDiagnostics bool                `yaml:"capture_diagnostics"`
	CaptureDir         string              `yaml:"capture_dir"`
	Priority           map[string][]string `yaml:"priority"`

	Browser  BrowserConfig  `yaml:"browser"`
	LinkedIn LinkedInConfig `yaml:"linkedin"`
	GitHub   GitHubConfig   `yaml:"github"`
	History  HistoryConfig  `yaml:"history"`
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
}

// BrowserConfig controls the Chrome session of browser sources.
type BrowserConfig struct {
	Remote           string        `yaml:"remote"`
	ChromePath       string        `yaml:"chrome_path"`
	Mode             string        `yaml:"mode"` // headless | headful
	DisableStealth   bool          `yaml:"disable_stealth"`
	UserAgent        string        `yaml:"user_agent"`
	ViewportWidth    int           `yaml:"viewport_width"`
	ViewportHeight   int           `yaml:"viewport_height"`
	ResourceBlocking []string      `yaml:"resource_blocking"`
	NavTimeout       time.Duration `yaml:"nav_timeout"`
	ReadyTimeout     time.Duration `yaml:"ready_timeout"`
	AuthWait         time.Duration `yaml:"auth_wait"`
	SettleDelay      time.Duration `yaml:"settle_delay"`
	ActionsPerSecond float64       `yaml:"actions_per_second"`
}

// LinkedInConfig holds the social source settings.
type LinkedInConfig struct {
	Username    string            `yaml:"username"`
	Password    credential.Secret `yaml:"password"`
	UsernameEnv string            `yaml:"username_env"`
	PasswordEnv string            `yaml:"password_env"`
	MaxPosts    int               `yaml:"max_posts"`
	SkipPosts   bool              `yaml:"skip_posts"`
}

// GitHubConfig holds the code-host source settings.
type GitHubConfig struct {
	BaseURL           string            `yaml:"base_url"`
	Token             credential.Secret `yaml:"token"`
	TokenEnv          string            `yaml:"token_env"`
	RequestsPerSecond float64           `yaml:"requests_per_second"`
	MaxPages          int               `yaml:"max_pages"`
	PageSize          int               `yaml:"page_size"`
	SkipForks         bool              `yaml:"skip_forks"`
}

// HistoryConfig locates the run archive.
type HistoryConfig struct {
	DBPath string `yaml:"db_path"`
}

// ServerConfig controls serve mode.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig selects the log level.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Load reads the YAML file at path ("" = defaults only) after loading the
// env files (default ".env"; a missing file is not an error). Credentials
// missing from the file are taken from the environment.
func Load(path string, envFiles ...string) (*Config, error) {
	if err := loadEnv(envFiles); err != nil {
		return nil, err
	}
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fault.Wrap(err, fault.ErrConfig, "config: read "+path)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fault.Wrap(err, fault.ErrConfig, "config: parse "+path)
		}
	}
	cfg.applyDefaults()
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadEnv(files []string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fault.Wrap(err, fault.ErrConfig, "config: load env "+f)
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if len(c.Sources) == 0 {
		c.Sources = slices.Clone(pipeline.KnownSources)
	}
	if c.PerSourceTimeout <= 0 {
		c.PerSourceTimeout = 2 * time.Minute
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = 5 * time.Minute
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 2
	}
	if c.CaptureDir == "" {
		c.CaptureDir = "captures"
	}
	if c.Browser.Mode == "" {
		c.Browser.Mode = "headless"
	}
	if len(c.Browser.ResourceBlocking) == 0 {
		c.Browser.ResourceBlocking = []string{"media", "fonts"}
	}
	if c.LinkedIn.UsernameEnv == "" {
		c.LinkedIn.UsernameEnv = "LINKEDIN_USERNAME"
	}
	if c.LinkedIn.PasswordEnv == "" {
		c.LinkedIn.PasswordEnv = "LINKEDIN_PASSWORD"
	}
	if c.LinkedIn.MaxPosts <= 0 {
		c.LinkedIn.MaxPosts = 20
	}
	if c.GitHub.TokenEnv == "" {
		c.GitHub.TokenEnv = "GITHUB_TOKEN"
	}
	if c.History.DBPath == "" {
		c.History.DBPath = "profilex.db"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = "127.0.0.1:8089"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

func (c *Config) applyEnv() {
	creds := credential.Credentials{Username: c.LinkedIn.Username, Password: c.LinkedIn.Password}.
		FromEnv(c.LinkedIn.UsernameEnv, c.LinkedIn.PasswordEnv)
	c.LinkedIn.Username, c.LinkedIn.Password = creds.Username, creds.Password
	c.GitHub.Token = credential.SecretFromEnv(c.GitHub.Token, c.GitHub.TokenEnv)
}

// Validate checks source names and value ranges.
func (c *Config) Validate() error {
	if len(c.Sources) == 0 {
		return fault.New(fault.ErrConfig, "config: no source enabled")
	}
	for _, s := range c.Sources {
		if !slices.Contains(pipeline.KnownSources, s) {
			return fault.Newf(fault.ErrConfig, "config: unknown source %q", s)
		}
	}
	if c.Browser.Mode != "headless" && c.Browser.Mode != "headful" {
		return fault.Newf(fault.ErrConfig, "config: browser.mode must be headless or headful, got %q", c.Browser.Mode)
	}
	if c.RunTimeout < c.PerSourceTimeout {
		return fault.Newf(fault.ErrConfig, "config: run_timeout %s shorter than per_source_timeout %s", c.RunTimeout, c.PerSourceTimeout)
	}
	return nil
}

// Pipeline converts c into a pipeline configuration.
func (c *Config) Pipeline(logger *slog.Logger) pipeline.Config {
	var prio aggregate.PriorityTable
	if len(c.Priority) > 0 {
		prio = aggregate.DefaultPriority()
		for field, order := range c.Priority {
			prio[field] = slices.Clone(order)
		}
	}
	return pipeline.Config{
		Sources:            slices.Clone(c.Sources),
		PerSourceTimeout:   c.PerSourceTimeout,
		RunTimeout:         c.RunTimeout,
		MaxRetries:         c.MaxRetries,
		CaptureDiagnostics: c.CaptureDiagnostics,
		CaptureDir:         c.CaptureDir,
		Priority:           prio,
		LinkedIn: linkedin.Config{
			Credentials: credential.Credentials{Username: c.LinkedIn.Username, Password: c.LinkedIn.Password},
			Browser: browser.Config{
				RemoteURL:        c.Browser.Remote,
				ChromePath:       c.Browser.ChromePath,
				Headful:          c.Browser.Mode == "headful",
				DisableStealth:   c.Browser.DisableStealth,
				UserAgent:        c.Browser.UserAgent,
				ViewportWidth:    c.Browser.ViewportWidth,
				ViewportHeight:   c.Browser.ViewportHeight,
				ResourceBlocking: slices.Clone(c.Browser.ResourceBlocking),
				NavTimeout:       c.Browser.NavTimeout,
				ReadyTimeout:     c.Browser.ReadyTimeout,
				AuthWait:         c.Browser.AuthWait,
				SettleDelay:      c.Browser.SettleDelay,
				ActionsPerSecond: c.Browser.ActionsPerSecond,
			},
			MaxPosts:  c.LinkedIn.MaxPosts,
			SkipPosts: c.LinkedIn.SkipPosts,
		},
		GitHub: github.Config{
			API: apifetch.Config{
				BaseURL:           c.GitHub.BaseURL,
				Token:             c.GitHub.Token,
				TokenEnv:          c.GitHub.TokenEnv,
				RequestsPerSecond: c.GitHub.RequestsPerSecond,
				MaxPages:          c.GitHub.MaxPages,
			},
			PageSize:  c.GitHub.PageSize,
			SkipForks: c.GitHub.SkipForks,
		},
		Logger: logger,
	}
}

// LogLevel parses Log.Level; unknown values mean info.
func (c *Config) LogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
