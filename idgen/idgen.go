// Package idgen generates identifiers for extraction runs. The strategy is
// a startup-time choice: callers take a Generator, tests inject Sequence.
package idgen

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

// UUIDv7 produces RFC 9562 version 7 UUIDs, sortable by creation time.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Prefixed prepends a type tag, e.g. "run_".
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

// Sequence yields prefix-1, prefix-2, ... for reproducible tests.
func Sequence(prefix string) Generator {
	var n atomic.Int64
	return func() string {
		return fmt.Sprintf("%s-%d", prefix, n.Add(1))
	}
}

// RunID is the default generator for run identifiers.
var RunID Generator = Prefixed("run_", UUIDv7())

// New returns a run identifier from RunID.
func New() string {
	return RunID()
}

// Parse checks that s is a run identifier and returns it in canonical form.
func Parse(s string) (string, error) {
	raw, ok := strings.CutPrefix(s, "run_")
	if !ok {
		return "", fmt.Errorf("idgen: %q lacks the run_ prefix", s)
	}
	u, err := uuid.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("idgen: invalid run id: %w", err)
	}
	return "run_" + u.String(), nil
}
