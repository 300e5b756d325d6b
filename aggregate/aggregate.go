// Package aggregate runs the profile sources concurrently and merges their
// fragments into one canonical profile. Merging follows an explicit
// priority table and records the provenance of every merged field; a
// failing source never prevents the others from contributing.
package aggregate

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/hazyhaar/profilex/fault"
	"github.com/hazyhaar/profilex/profile"
	"github.com/hazyhaar/profilex/source"
)

var tracer = otel.Tracer("github.com/hazyhaar/profilex/aggregate")

// Config configures an Aggregator.
type Config struct {
	// PerSourceTimeout bounds each adapter run. Default: 2m.
	PerSourceTimeout time.Duration
	// MaxConcurrency bounds adapters running at once. Default: all.
	MaxConcurrency int
	// Priority drives merging. Default: DefaultPriority().
	Priority PriorityTable
	Logger   *slog.Logger
	Now      func() time.Time
}

func (c *Config) defaults() {
	if c.PerSourceTimeout <= 0 {
		c.PerSourceTimeout = 2 * time.Minute
	}
	if c.Priority == nil {
		c.Priority = DefaultPriority()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Outcome is the terminal result of one adapter.
type Outcome struct {
	Fragment profile.Fragment
	Report   profile.SourceRunReport
}

// Aggregator owns a fixed set of adapters.
type Aggregator struct {
	cfg      Config
	adapters []source.Adapter
}

// New builds an Aggregator. Adapters run and report in name order.
func New(cfg Config, adapters ...source.Adapter) *Aggregator {
	cfg.defaults()
	sorted := slices.Clone(adapters)
	slices.SortStableFunc(sorted, func(a, b source.Adapter) int { return strings.Compare(a.Name(), b.Name()) })
	return &Aggregator{cfg: cfg, adapters: sorted}
}

// Run collects every adapter's outcome and merges them.
func (a *Aggregator) Run(ctx context.Context, id profile.Identity) profile.CanonicalProfile {
	outcomes := a.Collect(ctx, id)
	return Merge(id, outcomes, a.cfg.Priority, a.cfg.Now())
}

// Collect runs the applicable adapters concurrently, each under
// PerSourceTimeout, and waits for all of them. Inapplicable adapters get
// a skipped report. Outcomes follow adapter order.
func (a *Aggregator) Collect(ctx context.Context, id profile.Identity) []Outcome {
	ctx, span := tracer.Start(ctx, "aggregate.Collect")
	defer span.End()

	outcomes := make([]Outcome, len(a.adapters))
	var mu sync.Mutex

	p := pool.New()
	if a.cfg.MaxConcurrency > 0 {
		p = p.WithMaxGoroutines(a.cfg.MaxConcurrency)
	}
	for idx, ad := range a.adapters {
		if !ad.Applicable(id) {
			outcomes[idx] = Outcome{
				Fragment: profile.NewFragment(ad.Name()),
				Report:   source.Skipped(ad.Name(), "identity has no "+ad.Name()+" handle"),
			}
			a.cfg.Logger.Info("aggregate: source skipped", "source", ad.Name())
			continue
		}
		p.Go(func() {
			out := a.runOne(ctx, ad, id)
			mu.Lock()
			outcomes[idx] = out
			mu.Unlock()
		})
	}
	p.Wait()
	return outcomes
}

// runOne runs one adapter under its own deadline. A panic escaping the
// adapter becomes a failed report.
func (a *Aggregator) runOne(ctx context.Context, ad source.Adapter, id profile.Identity) (out Outcome) {
	name := ad.Name()
	ctx, cancel := context.WithTimeout(ctx, a.cfg.PerSourceTimeout)
	defer cancel()
	ctx, span := tracer.Start(ctx, "aggregate.source")
	span.SetAttributes(attribute.String("profile.source", name))
	defer span.End()

	start := a.cfg.Now()
	defer func() {
		if v := recover(); v != nil {
			a.cfg.Logger.Error("aggregate: adapter panic", "source", name, "panic", v, "stack", string(debug.Stack()))
			out = Outcome{
				Fragment: profile.NewFragment(name),
				Report: profile.SourceRunReport{
					Source: name,
					Status: profile.StatusFailed,
					Errors: []profile.FieldError{{
						Field: "adapter", Kind: string(fault.KindInternal), Message: fmt.Sprintf("panic: %v", v),
					}},
					ElapsedMS: a.cfg.Now().Sub(start).Milliseconds(),
				},
			}
			span.SetStatus(codes.Error, "panic")
		}
	}()

	frag, rep := ad.FetchProfile(ctx, id)
	frag.Source, rep.Source = name, name
	if rep.Status == "" {
		rep.Status = profile.StatusFailed
	}
	if rep.Failed() {
		span.SetStatus(codes.Error, "source failed")
	}
	span.SetAttributes(attribute.String("profile.status", string(rep.Status)))
	a.cfg.Logger.Info("aggregate: source finished", "source", name, "status", rep.Status, "errors", len(rep.Errors))
	return Outcome{Fragment: frag, Report: rep}
}
