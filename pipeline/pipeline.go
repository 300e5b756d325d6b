// Package pipeline is the entry point of an extraction run: it builds the
// enabled source adapters from configuration, bounds the run in time and
// returns the canonical profile with one report per source.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"time"

	"github.com/hazyhaar/profilex/aggregate"
	"github.com/hazyhaar/profilex/fault"
	"github.com/hazyhaar/profilex/idgen"
	"github.com/hazyhaar/profilex/profile"
	"github.com/hazyhaar/profilex/resilience"
	"github.com/hazyhaar/profilex/source"
	"github.com/hazyhaar/profilex/source/github"
	"github.com/hazyhaar/profilex/source/linkedin"
)

// KnownSources lists the built-in adapters.
var KnownSources = []string{profile.SourceGitHub, profile.SourceLinkedIn}

// Config configures a run.
type Config struct {
	// Sources enabled for the run. Default: every known source.
	Sources []string
	// PerSourceTimeout bounds each adapter. Default: 2m.
	PerSourceTimeout time.Duration
	// RunTimeout bounds the whole run. Default: 5m.
	RunTimeout time.Duration
	// MaxRetries is the number of retries after a transient failure of one
	// operation. Negative disables retries. Default: 2.
	MaxRetries int
	// CaptureDiagnostics enables browser screenshots at checkpoints.
	CaptureDiagnostics bool
	// CaptureDir receives the screenshots. Default: "captures".
	CaptureDir string

	LinkedIn linkedin.Config
	GitHub   github.Config
	// Priority overrides the merge table.
	Priority aggregate.PriorityTable

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if len(c.Sources) == 0 {
		c.Sources = slices.Clone(KnownSources)
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
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithAdapters replaces the built-in adapters. Config.Sources still
// filters them by name when set explicitly.
func WithAdapters(adapters ...source.Adapter) Option {
	return func(p *Pipeline) { p.injected = adapters }
}

// WithClock sets the clock used for timings and the profile timestamp.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithIDs sets the run identifier generator used in logs.
func WithIDs(gen idgen.Generator) Option {
	return func(p *Pipeline) { p.ids = gen }
}

// Pipeline runs extractions with a fixed configuration. It is safe for
// concurrent use; every run owns its sessions and clients.
type Pipeline struct {
	cfg      Config
	now      func() time.Time
	ids      idgen.Generator
	injected []source.Adapter
	adapters []source.Adapter
}

// New validates cfg and builds the adapters. An unknown or empty source
// selection is a config error.
func New(cfg Config, opts ...Option) (*Pipeline, error) {
	explicit := len(cfg.Sources) > 0
	cfg.defaults()
	p := &Pipeline{cfg: cfg, now: time.Now, ids: idgen.RunID}
	for _, o := range opts {
		o(p)
	}

	if p.injected != nil {
		for _, a := range p.injected {
			if !explicit || slices.Contains(cfg.Sources, a.Name()) {
				p.adapters = append(p.adapters, a)
			}
		}
	} else {
		for _, name := range cfg.Sources {
			a, err := p.builtin(name)
			if err != nil {
				return nil, err
			}
			p.adapters = append(p.adapters, a)
		}
	}
	if len(p.adapters) == 0 {
		return nil, fault.New(fault.ErrConfig, "pipeline: no source enabled")
	}
	return p, nil
}

func (p *Pipeline) retry() resilience.Policy {
	attempts := 1 + max(p.cfg.MaxRetries, 0)
	return resilience.Policy{MaxAttempts: attempts, Jitter: 0.2, Logger: p.cfg.Logger}
}

func (p *Pipeline) builtin(name string) (source.Adapter, error) {
	log := p.cfg.Logger
	switch name {
	case profile.SourceLinkedIn:
		lc := p.cfg.LinkedIn
		lc.Retry = p.retry()
		lc.Logger, lc.Now = log, p.now
		if p.cfg.CaptureDiagnostics && lc.Browser.CaptureDir == "" {
			lc.Browser.CaptureDir = filepath.Join(p.cfg.CaptureDir, profile.SourceLinkedIn)
		}
		if !p.cfg.CaptureDiagnostics {
			lc.Browser.CaptureDir = ""
		}
		return linkedin.New(lc), nil
	case profile.SourceGitHub:
		gc := p.cfg.GitHub
		gc.API.Retry = p.retry()
		gc.Logger, gc.Now = log, p.now
		return github.New(gc), nil
	}
	return nil, fault.Newf(fault.ErrConfig, "pipeline: unknown source %q (known: %v)", name, KnownSources)
}

// Sources returns the names of the enabled adapters.
func (p *Pipeline) Sources() []string {
	out := make([]string, len(p.adapters))
	for i, a := range p.adapters {
		out[i] = a.Name()
	}
	slices.Sort(out)
	return out
}

// Run extracts id from every enabled source. A profile is always
// returned. The error is non-nil only for an invalid identity (ErrConfig)
// or when the run deadline or the caller cancelled the run; the profile
// then holds whatever the sources produced in time.
func (p *Pipeline) Run(ctx context.Context, id profile.Identity) (profile.CanonicalProfile, error) {
	return p.RunWithID(ctx, p.ids(), id)
}

// NewRunID returns a fresh run identifier from the configured generator.
func (p *Pipeline) NewRunID() string { return p.ids() }

// RunWithID is Run with a caller-chosen run identifier, used when the
// run is archived under that identifier.
func (p *Pipeline) RunWithID(ctx context.Context, runID string, id profile.Identity) (profile.CanonicalProfile, error) {
	log := p.cfg.Logger.With("run_id", runID)

	if err := id.Validate(); err != nil {
		cp := aggregate.Merge(id, nil, p.cfg.Priority, p.now())
		return cp, fault.Wrap(err, fault.ErrConfig, "pipeline")
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.RunTimeout)
	defer cancel()

	log.Info("pipeline: run started", "sources", p.Sources(), "name", id.Name, "username", id.Username, "profile_url", id.ProfileURL)
	agg := aggregate.New(aggregate.Config{
		PerSourceTimeout: p.cfg.PerSourceTimeout,
		Priority:         p.cfg.Priority,
		Logger:           log,
		Now:              p.now,
	}, p.adapters...)
	cp := agg.Run(ctx, id)

	var err error
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		err = fault.Wrap(ctx.Err(), fault.ErrTimeout, fmt.Sprintf("pipeline: run exceeded %s", p.cfg.RunTimeout))
	case ctx.Err() != nil:
		err = fmt.Errorf("pipeline: run cancelled: %w", ctx.Err())
	}
	log.Info("pipeline: run finished", "sources", cp.Sources, "failed", failed(cp.Reports), "error", err)
	return cp, err
}

func failed(reps []profile.SourceRunReport) []string {
	var out []string
	for _, r := range reps {
		if r.Failed() {
			out = append(out, r.Source)
		}
	}
	return out
}

// Run is the one-shot form of New(cfg).Run(ctx, id).
func Run(ctx context.Context, id profile.Identity, cfg Config, opts ...Option) (profile.CanonicalProfile, error) {
	p, err := New(cfg, opts...)
	if err != nil {
		probe := &Pipeline{now: time.Now}
		for _, o := range opts {
			o(probe)
		}
		return aggregate.Merge(id, nil, cfg.Priority, probe.now()), err
	}
	return p.Run(ctx, id)
}
