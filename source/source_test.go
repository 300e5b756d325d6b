package source

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/hazyhaar/profilex/fault"
	"github.com/hazyhaar/profilex/profile"
)

func fixedClock() func() time.Time {
	t := time.Unix(1700000000, 0)
	return func() time.Time { return t }
}

func TestRecorder_Statuses(t *testing.T) {
	// WHAT: failed / partial / success follow fatality and fill state.
	log := slog.New(slog.DiscardHandler)

	rec := NewRecorder("x", log, fixedClock())
	rec.Fatal("authenticate", fault.New(fault.ErrAuthentication, "rejected"))
	if got := rec.Report(profile.NewFragment("x")).Status; got != profile.StatusFailed {
		t.Errorf("fatal+empty: %s", got)
	}

	rec = NewRecorder("x", log, fixedClock())
	frag := profile.NewFragment("x")
	frag.Mark(profile.SectionBasic, profile.Complete)
	rec.Error("posts", fault.New(fault.ErrTimeout, "scroll"))
	if got := rec.Report(frag).Status; got != profile.StatusPartial {
		t.Errorf("error+filled: %s", got)
	}

	rec = NewRecorder("x", log, fixedClock())
	empty := profile.NewFragment("x")
	empty.Mark(profile.SectionExperience, profile.Absent)
	rep := rec.Report(empty)
	if rep.Status != profile.StatusSuccess || rep.ElapsedMS != 0 {
		t.Errorf("clean run: %+v", rep)
	}
}

func TestRecorder_RateLimitCaptured(t *testing.T) {
	// WHAT: Recording a rate-limit error fills the report's rate-limit state.
	rec := NewRecorder("github", slog.New(slog.DiscardHandler), fixedClock())
	reset := time.Unix(1700003600, 0)
	rec.Error("repositories", fault.RateLimited(403, 60, 0, reset))
	rep := rec.Report(profile.NewFragment("github"))
	if rep.RateLimit == nil || !rep.RateLimit.Limited || !rep.RateLimit.Reset.Equal(reset) {
		t.Fatalf("rate limit: %+v", rep.RateLimit)
	}
	if rep.Errors[0].Kind != string(fault.KindRateLimited) {
		t.Errorf("kind: %s", rep.Errors[0].Kind)
	}
}

func TestRecorder_FinishRecoversPanic(t *testing.T) {
	// WHAT: A panic inside an adapter becomes a failed report.
	// WHY: No adapter failure may escape as an unhandled fault.
	run := func() (frag profile.Fragment, rep profile.SourceRunReport) {
		rec := NewRecorder("boom", slog.New(slog.DiscardHandler), fixedClock())
		frag = profile.NewFragment("boom")
		defer rec.Finish(&frag, &rep)
		panic(errors.New("nil map"))
	}
	_, rep := run()
	if rep.Status != profile.StatusFailed || len(rep.Errors) != 1 {
		t.Fatalf("report: %+v", rep)
	}
}

func TestRecorder_DriftSorted(t *testing.T) {
	rec := NewRecorder("x", slog.New(slog.DiscardHandler), fixedClock())
	rec.Drift("name", 2)
	rec.Drift("headline", 1)
	rec.Drift("name", 1)
	rec.Drift("ignored", 0)
	rep := rec.Report(profile.NewFragment("x"))
	if len(rep.Drift) != 2 || rep.Drift[0].Field != "headline" || rep.Drift[1].Index != 2 {
		t.Errorf("drift: %+v", rep.Drift)
	}
}
