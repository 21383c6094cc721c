package transform

import (
	"context"
	"errors"
)

// ErrNoOutput reports a transform that exited cleanly without producing output.
var ErrNoOutput = errors.New("transform produced no output")

// Engine converts the image at in into a new image at out. Callers must not
// assume an Engine is safe for concurrent use.
type Engine interface {
	Transform(ctx context.Context, in, out string) error
}

// EngineFunc adapts a function to the Engine interface.
type EngineFunc func(ctx context.Context, in, out string) error

// Transform calls f(ctx, in, out).
func (f EngineFunc) Transform(ctx context.Context, in, out string) error {
	return f(ctx, in, out)
}
