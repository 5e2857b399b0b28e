package jsonapi

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/rs/zerolog"
)

// ErrorSlot holds the last unexpected error for display.
type ErrorSlot struct {
	mu  sync.Mutex
	err error
}

func (s *ErrorSlot) Set(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *ErrorSlot) Get() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *ErrorSlot) Clear() {
	s.Set(nil)
}

// Guard applies the shared handling to errors returned by API calls:
// a 401 signs the user out and an aborted request is dropped, both without
// an error; anything else is recorded in Slot and returned.
type Guard struct {
	Slot              *ErrorSlot
	OnUnauthenticated func(ctx context.Context)
}

func (g *Guard) Handle(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if g == nil {
		return err
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
		zerolog.Ctx(ctx).Warn().Msg("api token rejected, signing out")
		if g.OnUnauthenticated != nil {
			g.OnUnauthenticated(ctx)
		}
		return nil
	}

	if errors.Is(err, context.Canceled) {
		return nil
	}

	if g.Slot != nil {
		g.Slot.Set(err)
	}
	return err
}

// Call runs fn and passes its error through g. A swallowed error yields the
// zero value of T and a nil error.
func Call[T any](ctx context.Context, g *Guard, fn func(context.Context) (T, error)) (T, error) {
	v, err := fn(ctx)
	if err == nil {
		return v, nil
	}

	var zero T
	return zero, g.Handle(ctx, err)
}
