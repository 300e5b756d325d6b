// Package source defines the contract every profile source implements and
// the run recorder adapters use to build their reports.
package source

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/hazyhaar/profilex/fault"
	"github.com/hazyhaar/profilex/profile"
)

// Adapter fetches one source's view of an identity. FetchProfile never
// panics past its boundary and always returns a report: internal failures
// are recorded and the best available fragment is returned.
type Adapter interface {
	Name() string
	// Applicable reports whether the identity carries what this source needs.
	Applicable(id profile.Identity) bool
	FetchProfile(ctx context.Context, id profile.Identity) (profile.Fragment, profile.SourceRunReport)
}

// Recorder accumulates the report of one adapter run. Methods are safe for
// concurrent use.
type Recorder struct {
	source string
	log    *slog.Logger
	now    func() time.Time
	start  time.Time

	mu       sync.Mutex
	errs     []profile.FieldError
	warnings []string
	drift    map[string]int
	rate     *profile.RateLimitState
	fatal    bool
}

// NewRecorder starts timing a run of source. A nil now uses time.Now.
func NewRecorder(source string, log *slog.Logger, now func() time.Time) *Recorder {
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = slog.Default()
	}
	return &Recorder{source: source, log: log.With("source", source), now: now, start: now(), drift: map[string]int{}}
}

// Error records a field- or section-level failure.
func (r *Recorder) Error(field string, err error) {
	if err == nil {
		return
	}
	r.mu.Lock()
	r.errs = append(r.errs, profile.FieldError{Field: field, Kind: string(fault.KindOf(err)), Message: err.Error()})
	r.mu.Unlock()
	if rl, ok := fault.RateLimit(err); ok {
		r.RateLimit(profile.RateLimitState{Limited: true, Limit: rl.Limit, Remaining: rl.Remaining, Reset: rl.Reset})
	}
	r.log.Warn("source: field error", "field", field, "kind", fault.KindOf(err), "error", err)
}

// Fatal records an adapter-level failure: the source could not run.
func (r *Recorder) Fatal(op string, err error) {
	r.Error(op, err)
	r.mu.Lock()
	r.fatal = true
	r.mu.Unlock()
}

// Warn records a non-fatal observation.
func (r *Recorder) Warn(msg string) {
	r.mu.Lock()
	r.warnings = append(r.warnings, msg)
	r.mu.Unlock()
}

// Drift records that field was resolved by fallback locator index.
func (r *Recorder) Drift(field string, index int) {
	if index <= 0 {
		return
	}
	r.mu.Lock()
	if index > r.drift[field] {
		r.drift[field] = index
	}
	r.mu.Unlock()
}

// RateLimit records the quota state.
func (r *Recorder) RateLimit(st profile.RateLimitState) {
	r.mu.Lock()
	r.rate = &st
	r.mu.Unlock()
}

// Finish converts a panic into a fatal error, then fills *rep from *frag.
// Defer it directly from FetchProfile with named results:
//
//	defer rec.Finish(&frag, &rep)
func (r *Recorder) Finish(frag *profile.Fragment, rep *profile.SourceRunReport) {
	if v := recover(); v != nil {
		r.log.Error("source: panic", "panic", v, "stack", string(debug.Stack()))
		r.Fatal("adapter", fmt.Errorf("source %s: panic: %v", r.source, v))
	}
	*rep = r.Report(*frag)
}

// Report finalizes the report for frag. Status is failed when the
// adapter failed and nothing was filled, partial when any error was
// recorded, success otherwise (confirmed-absent sections included).
func (r *Recorder) Report(frag profile.Fragment) profile.SourceRunReport {
	r.mu.Lock()
	defer r.mu.Unlock()

	rep := profile.SourceRunReport{
		Source:    r.source,
		Errors:    slices.Clone(r.errs),
		Warnings:  slices.Clone(r.warnings),
		RateLimit: r.rate,
		ElapsedMS: r.now().Sub(r.start).Milliseconds(),
	}
	for f, i := range r.drift {
		rep.Drift = append(rep.Drift, profile.Drift{Field: f, Index: i})
	}
	slices.SortFunc(rep.Drift, func(a, b profile.Drift) int { return strings.Compare(a.Field, b.Field) })

	switch {
	case r.fatal && !frag.Filled():
		rep.Status = profile.StatusFailed
	case r.fatal || len(r.errs) > 0:
		rep.Status = profile.StatusPartial
	default:
		rep.Status = profile.StatusSuccess
	}
	r.log.Info("source: run finished", "status", rep.Status, "errors", len(rep.Errors), "elapsed_ms", rep.ElapsedMS)
	return rep
}

// Skipped builds the report of an adapter that was not applicable.
func Skipped(source, reason string) profile.SourceRunReport {
	return profile.SourceRunReport{Source: source, Status: profile.StatusSkipped, Warnings: []string{reason}}
}
