// Package render fetches fully rendered product pages.
package render

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// Renderer returns the HTML of a page after client-side scripts ran.
// Implementations must honour both ctx and timeout.
type Renderer interface {
	Render(ctx context.Context, url string, timeout time.Duration) (string, error)
}

// ErrorKind classifies render failures.
type ErrorKind string

const (
	KindTimeout    ErrorKind = "timeout"
	KindNavigation ErrorKind = "navigation"
	KindUnknown    ErrorKind = "unknown"
)

// Error is the only error type renderers return.
type Error struct {
	Kind ErrorKind
	URL  string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("render %s (%s): %v", e.URL, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// classify wraps err into an *Error, detecting timeouts from the context or the network layer.
func classify(url string, err error, fallback ErrorKind) *Error {
	var rerr *Error
	if errors.As(err, &rerr) {
		return rerr
	}

	kind := fallback
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = KindTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = KindTimeout
	}

	return &Error{Kind: kind, URL: url, Err: err}
}
