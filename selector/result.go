package selector

import "fmt"

// Status is the tag of a Result.
type Status int

const (
	StatusNotFound Status = iota
	StatusFound
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusFound:
		return "found"
	case StatusNotFound:
		return "not_found"
	case StatusError:
		return "error"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Result is the three-way outcome of one extraction: Found with the index
// of the locator strategy that matched, NotFound, or Error with its cause.
type Result[T any] struct {
	Status Status
	Value  T
	Index  int
	Err    error
	// Attempts lists strategies that failed with an error before the outcome.
	Attempts []Attempt
}

// Attempt records a strategy that errored during resolution.
type Attempt struct {
	Index    int
	Strategy string
	Err      error
}

// Found builds a successful result.
func Found[T any](v T, index int) Result[T] {
	return Result[T]{Status: StatusFound, Value: v, Index: index}
}

// NotFound builds an absent result.
func NotFound[T any]() Result[T] {
	return Result[T]{Status: StatusNotFound, Index: -1}
}

// Failed builds an error result.
func Failed[T any](err error) Result[T] {
	return Result[T]{Status: StatusError, Err: err, Index: -1}
}

// OK reports whether the result is Found.
func (r Result[T]) OK() bool { return r.Status == StatusFound }

// Or returns the value when found, def otherwise.
func (r Result[T]) Or(def T) T {
	if r.OK() {
		return r.Value
	}
	return def
}

// Drifted reports whether a fallback strategy produced the value.
func (r Result[T]) Drifted() bool { return r.OK() && r.Index > 0 }
