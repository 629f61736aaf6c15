package export

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/viam-labs/sfm-export/render"
)

// renderAll renders every planned image in order. A camera is only left once its image is saved;
// cancelled and failed renders retry the same camera.
func (e *Exporter) renderAll(ctx context.Context, plan []plannedImage, res *Result) error {
	original := e.scene.ActiveCamera()
	defer func() {
		e.tracker.Reset()
		e.renderer.Release()
		e.restoreActive(original)
	}()

	for i, img := range plan {
		e.logger.Infof("Processing camera %d/%d: %s", i+1, len(plan), img.camera.Name())
		if err := e.renderOne(ctx, img, res); err != nil {
			if ctx.Err() != nil {
				return combineCleanup(ctx.Err(), e.cleanupPartial(img.path))
			}
			return combineCleanup(errors.Wrapf(err, "camera %q", img.camera.Name()), e.cleanupPartial(img.path))
		}
		res.Files = append(res.Files, img.path)
	}
	return nil
}

// renderOne renders img until an outcome is saved. Transient failures are retried with
// exponentially growing waits on the exporter's clock; terminal failures end the run.
func (e *Exporter) renderOne(ctx context.Context, img plannedImage, res *Result) error {
	e.scene.SetActiveCamera(img.camera)
	maxAttempts := e.cfg.MaxRenderAttempts
	var wait time.Duration
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		outcome, disposition, err := e.attempt(ctx, img)
		res.RenderAttempts++
		if err != nil {
			return err
		}
		if disposition == render.Advance {
			if err := e.renderer.Save(outcome, img.path); err != nil {
				return errors.Wrap(err, "failed to save rendered image")
			}
			return nil
		}
		if render.IsTerminal(outcome.Err) {
			e.logger.Debugw("render hit non retryable error", "camera", img.camera.Name(), "error", outcome.Err)
			return errors.Wrapf(outcome.Err, "render %s", outcome.Kind)
		}
		if maxAttempts > 0 && attempt >= maxAttempts {
			return errors.Wrapf(ErrRenderAttemptsExhausted, "%d attempts, last %s: %v", maxAttempts, outcome.Kind, outcome.Err)
		}
		wait = nextRetryWait(wait)
		e.logger.Warnw("render did not complete, retrying",
			"camera", img.camera.Name(), "attempt", attempt, "outcome", outcome.Kind.String(),
			"error", outcome.Err, "wait", wait.String())
		if err := e.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// attempt issues one render request and waits for its outcome. Outcomes for other requests are
// ignored. A timeout or a request error counts as a failed render.
func (e *Exporter) attempt(ctx context.Context, img plannedImage) (render.Outcome, render.Disposition, error) {
	token, err := e.tracker.Begin()
	if err != nil {
		return render.Outcome{}, render.Ignore, err
	}

	// the timer starts before the request so a renderer that never answers is always bounded
	var timeout <-chan time.Time
	if d := e.renderTimeout(); d > 0 {
		timer := e.clock.Timer(d)
		defer timer.Stop()
		timeout = timer.C
	}

	if err := e.renderer.Request(ctx, img.camera, token); err != nil {
		e.tracker.Reset()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return render.Outcome{}, render.Ignore, ctxErr
		}
		// a request that could not start is a failed render of the same camera
		return render.Outcome{Token: token, Kind: render.Failed, Err: errors.Wrap(err, "render request failed")}, render.Retry, nil
	}

	for {
		select {
		case <-ctx.Done():
			e.tracker.Reset()
			return render.Outcome{}, render.Ignore, ctx.Err()
		case <-timeout:
			e.tracker.Reset()
			return render.Outcome{Token: token, Kind: render.Failed, Err: ErrRenderTimeout}, render.Retry, nil
		case outcome, ok := <-e.renderer.Outcomes():
			if !ok {
				e.tracker.Reset()
				return render.Outcome{}, render.Ignore, errors.New("renderer stopped delivering outcomes")
			}
			disposition := e.tracker.Resolve(outcome)
			if disposition == render.Ignore {
				e.logger.Debugw("ignoring render outcome for another request",
					"token", outcome.Token.String(), "outcome", outcome.Kind.String())
				continue
			}
			return outcome, disposition, nil
		}
	}
}
