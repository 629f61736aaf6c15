// Package render drives image renders of scene cameras. A Renderer completes requests asynchronously;
// a Tracker matches the outcomes it delivers against the single request in flight.
package render

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/viam-labs/sfm-export/scene"
)

// OutcomeKind is how a render request ended.
type OutcomeKind int

// Outcome kinds.
const (
	Rendered OutcomeKind = iota
	Cancelled
	Failed
)

func (k OutcomeKind) String() string {
	switch k {
	case Rendered:
		return "rendered"
	case Cancelled:
		return "cancelled"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// ErrReleased is returned by requests made after Release.
var ErrReleased = NewTerminalError(errors.New("renderer is released"))

// NewTerminalError marks err as a render failure that retrying cannot fix, such as a camera the
// renderer will never produce an image for.
func NewTerminalError(err error) error {
	if err == nil {
		return nil
	}
	return &terminalError{err: err}
}

type terminalError struct {
	err error
}

func (e *terminalError) Error() string {
	return e.err.Error()
}

func (e *terminalError) Unwrap() error {
	return e.err
}

// IsTerminal reports whether err or any error it wraps was made by NewTerminalError.
func IsTerminal(err error) bool {
	var te *terminalError
	return errors.As(err, &te)
}

// Outcome reports the end of one render request.
type Outcome struct {
	Token uuid.UUID
	Kind  OutcomeKind
	// Err describes a Failed outcome. Failures marked with NewTerminalError are not retried.
	Err error
}

// Renderer renders an image through a scene camera.
type Renderer interface {
	// Request starts rendering through cam. The outcome is delivered on Outcomes tagged with token.
	// An error means the request was not started; it is retried unless marked terminal.
	Request(ctx context.Context, cam scene.Camera, token uuid.UUID) error
	// Outcomes delivers the outcome of every request, possibly including stale ones.
	Outcomes() <-chan Outcome
	// Save writes the image of a Rendered outcome to path.
	Save(outcome Outcome, path string) error
	// Release abandons any request in flight and frees its resources.
	Release()
}
