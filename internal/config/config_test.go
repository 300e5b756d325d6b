package config

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/profilex/fault"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func noEnvFile(t *testing.T) string {
	return filepath.Join(t.TempDir(), "absent.env")
}

func TestLoad_FileAndDefaults(t *testing.T) {
	t.Setenv("LINKEDIN_USERNAME", "")
	t.Setenv("LINKEDIN_PASSWORD", "")
	t.Setenv("GITHUB_TOKEN", "")
	path := writeFile(t, "profilex.yaml", `
sources: [github]
per_source_timeout: 45s
run_timeout: 2m
capture_diagnostics: true
browser:
  mode: headful
  viewport_width: 1280
github:
  base_url: http://api.local
  page_size: 50
priority:
  name: [github, linkedin]
`)
	cfg, err := Load(path, noEnvFile(t))
	require.NoError(t, err)

	assert.Equal(t, []string{"github"}, cfg.Sources)
	assert.Equal(t, 45*time.Second, cfg.PerSourceTimeout)
	assert.Equal(t, 2, cfg.MaxRetries)
	assert.Equal(t, "profilex.db", cfg.History.DBPath)

	pc := cfg.Pipeline(slog.New(slog.DiscardHandler))
	assert.True(t, pc.LinkedIn.Browser.Headful)
	assert.Equal(t, 1280, pc.LinkedIn.Browser.ViewportWidth)
	assert.Equal(t, "http://api.local", pc.GitHub.API.BaseURL)
	assert.Equal(t, 50, pc.GitHub.PageSize)
	assert.Equal(t, []string{"github", "linkedin"}, pc.Priority["name"])
	assert.Equal(t, []string{"linkedin"}, pc.Priority["experience"], "unlisted fields keep their default order")
}

func TestLoad_CredentialsFromEnvFile(t *testing.T) {
	// WHAT: Credentials come from a .env file; the YAML has none.
	// WHY: Secrets stay out of config files, and never print in clear.
	t.Setenv("LINKEDIN_USERNAME", "")
	t.Setenv("LINKEDIN_PASSWORD", "")
	t.Setenv("GITHUB_TOKEN", "")
	os.Unsetenv("LINKEDIN_USERNAME")
	os.Unsetenv("LINKEDIN_PASSWORD")
	os.Unsetenv("GITHUB_TOKEN")
	env := writeFile(t, ".env", "LINKEDIN_USERNAME=ada@example.com\nLINKEDIN_PASSWORD=hunter2\nGITHUB_TOKEN=ghp_secret\n")

	cfg, err := Load("", env)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", cfg.LinkedIn.Username)
	assert.Equal(t, "hunter2", cfg.LinkedIn.Password.Reveal())
	assert.Equal(t, "ghp_secret", cfg.GitHub.Token.Reveal())

	var logs bytes.Buffer
	slog.New(slog.NewJSONHandler(&logs, nil)).Info("loaded", "config", cfg.LinkedIn.Password, "token", cfg.GitHub.Token)
	b, err := json.Marshal(cfg.GitHub)
	require.NoError(t, err)
	for _, out := range []string{logs.String(), string(b)} {
		assert.NotContains(t, out, "hunter2")
		assert.NotContains(t, out, "ghp_secret")
	}
}

func TestLoad_ExplicitValuesWinOverEnv(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "from-env")
	path := writeFile(t, "c.yaml", "github:\n  token: from-file\n")
	cfg, err := Load(path, noEnvFile(t))
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.GitHub.Token.Reveal())
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"unknown source": "sources: [myspace]\n",
		"bad mode":       "browser:\n  mode: kiosk\n",
		"timeouts":       "per_source_timeout: 10m\nrun_timeout: 1m\n",
		"yaml":           "sources: [github\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeFile(t, "c.yaml", body), noEnvFile(t))
			assert.True(t, fault.Is(err, fault.ErrConfig), "err: %v", err)
		})
	}
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), noEnvFile(t))
	assert.True(t, fault.Is(err, fault.ErrConfig))
}

func TestLogLevel(t *testing.T) {
	c := &Config{Log: LogConfig{Level: "debug"}}
	assert.Equal(t, slog.LevelDebug, c.LogLevel())
	c.Log.Level = "loud"
	assert.Equal(t, slog.LevelInfo, c.LogLevel())
}
