package headless

import (
	"context"
	"errors"

	"github.com/JakeFAU/personal-site-api/internal/fetcher"
)

// ErrDisabled is returned by Noop.
var ErrDisabled = errors.New("headless fetcher not configured")

// Noop stands in when the headless fallback is turned off.
type Noop struct{}

// NewNoop creates a new Noop fetcher.
func NewNoop() *Noop {
	return &Noop{}
}

// Fetch always fails with ErrDisabled.
func (Noop) Fetch(context.Context, fetcher.Request) (fetcher.Response, error) {
	return fetcher.Response{}, ErrDisabled
}
