package fault

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf_SurvivesWrapping(t *testing.T) {
	// WHAT: Classification is preserved through fmt.Errorf wrapping.
	// WHY: Every layer adds "pkg: op:" context; the report still needs the class.
	base := New(ErrNotFound, "user octocat")
	wrapped := fmt.Errorf("github: fetch profile: %w", base)

	assert.Equal(t, KindNotFound, KindOf(wrapped))
	assert.True(t, Is(wrapped, ErrNotFound))
	assert.False(t, Is(wrapped, ErrAuthentication))
}

func TestKindOf_ContextDeadline(t *testing.T) {
	// WHAT: A context deadline is reported as a timeout.
	err := fmt.Errorf("browser: navigate: %w", context.DeadlineExceeded)
	assert.Equal(t, KindTimeout, KindOf(err))
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Equal(t, Kind(""), KindOf(nil))
}

func TestRateLimit_CarriesReset(t *testing.T) {
	// WHAT: The reset time is recoverable from a wrapped rate-limit error.
	// WHY: Callers decide whether to wait; they need the timestamp, not just "failed".
	reset := time.Unix(1700000000, 0)
	err := fmt.Errorf("apifetch: page 2: %w", RateLimited(403, 60, 0, reset))

	rl, ok := RateLimit(err)
	require.True(t, ok)
	assert.True(t, rl.Reset.Equal(reset))
	assert.Equal(t, KindRateLimited, KindOf(err))
	assert.True(t, errors.Is(err, ErrRateLimited), "stdlib errors.Is")
	assert.False(t, Retryable(err))
}

func TestRetryable(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{New(ErrTransient, "connection reset"), true},
		{Wrap(context.DeadlineExceeded, ErrTimeout, "attempt"), true},
		{New(ErrAuthentication, "bad token"), false},
		{New(ErrInvalidResponse, "not json"), false},
		{context.Canceled, false},
		{nil, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Retryable(c.err), "%v", c.err)
	}
}

func TestWrap_NilPassthrough(t *testing.T) {
	assert.NoError(t, Wrap(nil, ErrTimeout, "x"))
	assert.NoError(t, Mark(nil, ErrTimeout))
}
