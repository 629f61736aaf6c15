package render

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/viam-labs/sfm-export/logging"
	"github.com/viam-labs/sfm-export/scene"
)

func TestTrackerLifecycle(t *testing.T) {
	var tr Tracker
	test.That(t, tr.State(), test.ShouldEqual, Idle)
	test.That(t, tr.Token(), test.ShouldEqual, uuid.Nil)

	token, err := tr.Begin()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, token, test.ShouldNotEqual, uuid.Nil)
	test.That(t, tr.State(), test.ShouldEqual, AwaitingRender)

	_, err = tr.Begin()
	test.That(t, err, test.ShouldBeError, ErrRenderInFlight)

	// an outcome for another request leaves the tracker waiting
	test.That(t, tr.Resolve(Outcome{Token: uuid.New(), Kind: Rendered}), test.ShouldEqual, Ignore)
	test.That(t, tr.State(), test.ShouldEqual, AwaitingRender)

	test.That(t, tr.Resolve(Outcome{Token: token, Kind: Rendered}), test.ShouldEqual, Advance)
	test.That(t, tr.State(), test.ShouldEqual, Idle)

	// the same outcome delivered twice is stale the second time
	test.That(t, tr.Resolve(Outcome{Token: token, Kind: Rendered}), test.ShouldEqual, Ignore)
}

func TestTrackerRetry(t *testing.T) {
	var tr Tracker
	for _, kind := range []OutcomeKind{Cancelled, Failed} {
		token, err := tr.Begin()
		test.That(t, err, test.ShouldBeNil)
		test.That(t, tr.Resolve(Outcome{Token: token, Kind: kind}), test.ShouldEqual, Retry)
		test.That(t, tr.State(), test.ShouldEqual, Idle)
	}

	first, err := tr.Begin()
	test.That(t, err, test.ShouldBeNil)
	tr.Reset()
	second, err := tr.Begin()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, second, test.ShouldNotEqual, first)
	test.That(t, tr.Resolve(Outcome{Token: first, Kind: Rendered}), test.ShouldEqual, Ignore)
	test.That(t, tr.Resolve(Outcome{Token: second, Kind: Rendered}), test.ShouldEqual, Advance)
}

func TestStrings(t *testing.T) {
	test.That(t, Rendered.String(), test.ShouldEqual, "rendered")
	test.That(t, Failed.String(), test.ShouldEqual, "failed")
	test.That(t, AwaitingRender.String(), test.ShouldEqual, "awaiting_render")
	test.That(t, Retry.String(), test.ShouldEqual, "retry")
}

func newCamera(t *testing.T, name string) scene.Camera {
	t.Helper()
	cam, err := scene.NewFileCamera(scene.CameraConfig{Name: name})
	test.That(t, err, test.ShouldBeNil)
	return cam
}

func awaitOutcome(t *testing.T, r Renderer) Outcome {
	t.Helper()
	select {
	case o := <-r.Outcomes():
		return o
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for render outcome")
		return Outcome{}
	}
}

func TestDirectoryRenderer(t *testing.T) {
	src := t.TempDir()
	test.That(t, os.WriteFile(filepath.Join(src, "Camera.001.jpg"), []byte("jpeg"), 0o600), test.ShouldBeNil)

	r, err := NewDirectoryRenderer(src, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	defer r.Release()

	token := uuid.New()
	test.That(t, r.Request(context.Background(), newCamera(t, "Camera.001"), token), test.ShouldBeNil)
	outcome := awaitOutcome(t, r)
	test.That(t, outcome.Token, test.ShouldEqual, token)
	test.That(t, outcome.Kind, test.ShouldEqual, Rendered)

	dst := filepath.Join(t.TempDir(), "out.jpg")
	test.That(t, r.Save(outcome, dst), test.ShouldBeNil)
	data, err := os.ReadFile(dst)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(data), test.ShouldEqual, "jpeg")

	// an outcome can only be saved once
	test.That(t, r.Save(outcome, dst), test.ShouldNotBeNil)

	test.That(t, r.Request(context.Background(), newCamera(t, "Missing"), uuid.New()), test.ShouldBeNil)
	outcome = awaitOutcome(t, r)
	test.That(t, outcome.Kind, test.ShouldEqual, Failed)
	test.That(t, IsTerminal(outcome.Err), test.ShouldBeTrue)
	test.That(t, errors.Is(outcome.Err, os.ErrNotExist), test.ShouldBeTrue)
	test.That(t, r.Save(outcome, dst), test.ShouldNotBeNil)

	test.That(t, os.Mkdir(filepath.Join(src, "Dir.jpg"), 0o750), test.ShouldBeNil)
	test.That(t, r.Request(context.Background(), newCamera(t, "Dir"), uuid.New()), test.ShouldBeNil)
	outcome = awaitOutcome(t, r)
	test.That(t, outcome.Kind, test.ShouldEqual, Failed)
	test.That(t, IsTerminal(outcome.Err), test.ShouldBeTrue)
	test.That(t, outcome.Err.Error(), test.ShouldContainSubstring, "is a directory")
}

func TestTerminalError(t *testing.T) {
	test.That(t, NewTerminalError(nil), test.ShouldBeNil)
	test.That(t, IsTerminal(nil), test.ShouldBeFalse)
	test.That(t, IsTerminal(errors.New("gpu busy")), test.ShouldBeFalse)

	cause := errors.New("camera has no image")
	err := errors.Wrap(NewTerminalError(cause), "camera \"A\"")
	test.That(t, IsTerminal(err), test.ShouldBeTrue)
	test.That(t, errors.Is(err, cause), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldEqual, "camera \"A\": camera has no image")
	test.That(t, IsTerminal(ErrReleased), test.ShouldBeTrue)
}

func TestDirectoryRendererRelease(t *testing.T) {
	r, err := NewDirectoryRenderer(t.TempDir(), logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)

	// fill the outcome buffer so the second lookup blocks until release
	test.That(t, r.Request(context.Background(), newCamera(t, "A"), uuid.New()), test.ShouldBeNil)
	test.That(t, r.Request(context.Background(), newCamera(t, "B"), uuid.New()), test.ShouldBeNil)
	r.Release()

	err = r.Request(context.Background(), newCamera(t, "C"), uuid.New())
	test.That(t, errors.Is(err, ErrReleased), test.ShouldBeTrue)
	test.That(t, IsTerminal(err), test.ShouldBeTrue)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r2, err := NewDirectoryRenderer(t.TempDir(), logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	defer r2.Release()
	test.That(t, r2.Request(ctx, newCamera(t, "A"), uuid.New()), test.ShouldBeError, context.Canceled)
}

func TestNewDirectoryRendererErrors(t *testing.T) {
	_, err := NewDirectoryRenderer(filepath.Join(t.TempDir(), "nope"), logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)

	file := filepath.Join(t.TempDir(), "file")
	test.That(t, os.WriteFile(file, nil, 0o600), test.ShouldBeNil)
	_, err = NewDirectoryRenderer(file, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
}
