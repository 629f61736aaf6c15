package render

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// State is the state of a Tracker.
type State int

// Tracker states.
const (
	Idle State = iota
	AwaitingRender
)

func (s State) String() string {
	if s == AwaitingRender {
		return "awaiting_render"
	}
	return "idle"
}

// Disposition is what the owner of a Tracker should do after an outcome.
type Disposition int

// Dispositions.
const (
	// Advance means the current camera's image is ready.
	Advance Disposition = iota
	// Retry means the current camera must be rendered again.
	Retry
	// Ignore means the outcome does not belong to the request in flight.
	Ignore
)

func (d Disposition) String() string {
	switch d {
	case Advance:
		return "advance"
	case Retry:
		return "retry"
	default:
		return "ignore"
	}
}

// ErrRenderInFlight is returned when a request is started while another is outstanding.
var ErrRenderInFlight = errors.New("a render request is already in flight")

// Tracker is the two-state render machine. It holds at most one outstanding request token and is
// owned by a single export run.
type Tracker struct {
	state State
	token uuid.UUID
}

// State returns the current state.
func (t *Tracker) State() State {
	return t.state
}

// Token returns the outstanding token, or uuid.Nil when idle.
func (t *Tracker) Token() uuid.UUID {
	return t.token
}

// Begin moves from Idle to AwaitingRender under a fresh token.
func (t *Tracker) Begin() (uuid.UUID, error) {
	if t.state != Idle {
		return uuid.Nil, ErrRenderInFlight
	}
	t.token = uuid.New()
	t.state = AwaitingRender
	return t.token, nil
}

// Resolve dispatches an outcome. Outcomes for the outstanding token return the tracker to Idle;
// any other outcome, or any outcome while idle, is ignored.
func (t *Tracker) Resolve(o Outcome) Disposition {
	if t.state != AwaitingRender || o.Token != t.token {
		return Ignore
	}
	t.Reset()
	if o.Kind == Rendered {
		return Advance
	}
	return Retry
}

// Reset abandons the outstanding request, if any.
func (t *Tracker) Reset() {
	t.state = Idle
	t.token = uuid.Nil
}
