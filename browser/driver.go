package browser

import (
	"context"

	"github.com/hazyhaar/profilex/selector"
)

// Driver owns a browser process or remote connection.
type Driver interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// DriverFactory acquires a Driver for one session.
type DriverFactory func(ctx context.Context, cfg Config) (Driver, error)

// Page is one browser tab as seen by a Session.
type Page interface {
	// Navigate loads url and waits for the load event.
	Navigate(ctx context.Context, url string) error
	// URL returns the current location.
	URL(ctx context.Context) (string, error)
	// Root is the document scope used by the selector resolver.
	Root() selector.Scope
	// Input types text into the first element matching css.
	Input(ctx context.Context, css, text string) error
	// Click clicks the first element matching css.
	Click(ctx context.Context, css string) error
	// Activate clicks an element previously located through Root.
	Activate(ctx context.Context, node selector.Scope) error
	// Scroll advances the viewport to reveal lazily rendered content.
	Scroll(ctx context.Context) error
	Screenshot(ctx context.Context) ([]byte, error)
	Close() error
}
