package render

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"github.com/viam-labs/sfm-export/logging"
	"github.com/viam-labs/sfm-export/scene"
	"github.com/viam-labs/sfm-export/utils"
)

// ImageExt is the extension of rendered images.
const ImageExt = ".jpg"

// DirectoryRenderer "renders" by looking up pre-rendered images named "<camera name>.jpg" in a source
// directory. Lookups run in the background and complete asynchronously like a host render.
type DirectoryRenderer struct {
	mu       sync.Mutex
	srcDir   string
	logger   logging.Logger
	outcomes chan Outcome
	sources  map[uuid.UUID]string

	cancelCtx               context.Context
	cancelFunc              func()
	activeBackgroundWorkers sync.WaitGroup
}

// NewDirectoryRenderer returns a renderer serving images from srcDir.
func NewDirectoryRenderer(srcDir string, logger logging.Logger) (*DirectoryRenderer, error) {
	info, err := os.Stat(srcDir)
	if err != nil {
		return nil, errors.Wrap(err, "render source")
	}
	if !info.IsDir() {
		return nil, errors.Errorf("render source %q is not a directory", srcDir)
	}
	cancelCtx, cancelFunc := context.WithCancel(context.Background())
	return &DirectoryRenderer{
		srcDir:     srcDir,
		logger:     logger,
		outcomes:   make(chan Outcome, 1),
		sources:    map[uuid.UUID]string{},
		cancelCtx:  cancelCtx,
		cancelFunc: cancelFunc,
	}, nil
}

// Request looks up the image for cam in the background.
func (r *DirectoryRenderer) Request(ctx context.Context, cam scene.Camera, token uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := r.cancelCtx.Err(); err != nil {
		return ErrReleased
	}
	src := filepath.Join(r.srcDir, cam.Name()+ImageExt)
	r.activeBackgroundWorkers.Add(1)
	goutils.PanicCapturingGo(func() {
		defer r.activeBackgroundWorkers.Done()
		outcome := Outcome{Token: token, Kind: Rendered}
		// a missing image will not appear by asking again
		if info, err := os.Stat(src); err != nil {
			if os.IsNotExist(err) {
				err = NewTerminalError(err)
			}
			outcome.Kind, outcome.Err = Failed, err
		} else if info.IsDir() {
			outcome.Kind, outcome.Err = Failed, NewTerminalError(errors.Errorf("%q is a directory", src))
		} else {
			r.mu.Lock()
			r.sources[token] = src
			r.mu.Unlock()
		}
		r.logger.Debugw("render finished", "camera", cam.Name(), "outcome", outcome.Kind.String())
		select {
		case r.outcomes <- outcome:
		case <-r.cancelCtx.Done():
		}
	})
	return nil
}

// Outcomes delivers render outcomes.
func (r *DirectoryRenderer) Outcomes() <-chan Outcome {
	return r.outcomes
}

// Save copies the image of a Rendered outcome to path.
func (r *DirectoryRenderer) Save(outcome Outcome, path string) error {
	r.mu.Lock()
	src, ok := r.sources[outcome.Token]
	delete(r.sources, outcome.Token)
	r.mu.Unlock()
	if !ok || outcome.Kind != Rendered {
		return errors.Errorf("no rendered image for request %s", outcome.Token)
	}
	//nolint:gosec
	data, err := os.ReadFile(src)
	if err != nil {
		return errors.Wrap(err, "failed to read rendered image")
	}
	return utils.WriteFileAtomic(path, data, 0o644)
}

// Release stops outstanding lookups and waits for them to exit.
func (r *DirectoryRenderer) Release() {
	r.cancelFunc()
	r.activeBackgroundWorkers.Wait()
	r.mu.Lock()
	r.sources = map[uuid.UUID]string{}
	r.mu.Unlock()
}
