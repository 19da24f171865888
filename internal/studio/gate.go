package studio

import (
	"context"
	"errors"
)

// ErrAccessDenied is returned when the access gate rejects a request.
var ErrAccessDenied = errors.New("studio: access denied")

// Gate decides whether paid model features may be used.
type Gate interface {
	// Check returns nil to admit the request or an error wrapping
	// [ErrAccessDenied].
	Check(ctx context.Context) error
}

// GateFunc adapts a function to [Gate].
type GateFunc func(ctx context.Context) error

// Check calls f(ctx).
func (f GateFunc) Check(ctx context.Context) error { return f(ctx) }

// OpenGate admits every request.
type OpenGate struct{}

// Check always returns nil.
func (OpenGate) Check(context.Context) error { return nil }

// KeyGate admits requests while an API key is configured. Key is called on
// every check.
type KeyGate struct {
	Key func() string
}

// Check implements [Gate].
func (g KeyGate) Check(context.Context) error {
	if g.Key == nil || g.Key() == "" {
		return ErrAccessDenied
	}
	return nil
}
