// Package recognition turns request images into face descriptors.
// It uses dlib through go-face for detection, 5-point landmark alignment
// and the 128-dimensional ResNet descriptor.
package recognition

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Kagami/go-face"

	"github.com/MrCodeEU/attendface/pkg/acceleration"
	"github.com/MrCodeEU/attendface/pkg/logging"
)

// DescriptorSize is the dimension of every descriptor this package produces.
const DescriptorSize = len(face.Descriptor{})

// Model files expected in the model directory. The CNN detector model is
// only needed for the cnn backend.
var RequiredModels = []string{
	"shape_predictor_5_face_landmarks.dat",
	"dlib_face_recognition_resnet_model_v1.dat",
}

// ErrNoFaceDetected is returned when no face is found in the image.
var ErrNoFaceDetected = errors.New("no face detected")

// ErrMultipleFaces is returned when multiple faces are detected.
var ErrMultipleFaces = errors.New("multiple faces detected")

// ErrModelNotLoaded is returned when models are missing or the recognizer is closed.
var ErrModelNotLoaded = errors.New("recognition models not loaded")

// ErrDetectionTimeout is returned when the model runtime exceeds the per-call budget.
var ErrDetectionTimeout = errors.New("face detection timed out")

// ErrModelFailure wraps any other failure reported by the model runtime.
var ErrModelFailure = errors.New("face model failure")

// FaceEngine is the subset of the go-face recognizer used here.
type FaceEngine interface {
	Recognize(data []byte) ([]face.Face, error)
	RecognizeCNN(data []byte) ([]face.Face, error)
	Close()
}

// Face is one detected face.
type Face struct {
	BoundingBox image.Rectangle
	Landmarks   []image.Point
	Descriptor  []float64
}

// Capture is the single face extracted from a request image, together with
// the decoded image it was found in.
type Capture struct {
	Face  Face
	Image *Image
}

// Options configures a Recognizer.
type Options struct {
	ModelPath         string
	Backend           acceleration.Backend
	DetectTimeout     time.Duration
	MaxImageDimension int
	MaxImagePixels    int
}

// Recognizer runs the dlib pipeline. Weights are loaded once by New and
// shared read-only by concurrent calls.
type Recognizer struct {
	engine  FaceEngine
	backend acceleration.Backend
	timeout time.Duration
	maxDim  int
	maxPix  int

	mu     sync.RWMutex
	closed bool

	// inflight counts runtime calls, including ones abandoned on timeout.
	inflight sync.WaitGroup
}

func defaultFactory(modelPath string) (FaceEngine, error) {
	rec, err := face.NewRecognizer(modelPath)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// CheckModels verifies that the required model files exist in dir.
func CheckModels(dir string, backend acceleration.Backend) error {
	files := RequiredModels
	if backend == acceleration.BackendCNN {
		files = append(append([]string{}, files...), acceleration.CNNModelFile)
	}
	for _, name := range files {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			return fmt.Errorf("%w: %s missing in %s", ErrModelNotLoaded, name, dir)
		}
	}
	return nil
}

// New loads the models from opts.ModelPath.
func New(opts Options) (*Recognizer, error) {
	if err := CheckModels(opts.ModelPath, opts.Backend); err != nil {
		return nil, err
	}
	return load(opts, defaultFactory)
}

func load(opts Options, factory func(string) (FaceEngine, error)) (*Recognizer, error) {
	log := logging.Component("recognition")
	log.Infof("Loading face recognition models from: %s", opts.ModelPath)

	engine, err := factory(opts.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load models: %w", err)
	}

	backend := opts.Backend
	if backend != acceleration.BackendCNN {
		backend = acceleration.BackendHOG
	}
	timeout := opts.DetectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	log.WithField("backend", backend).Info("Face recognition models loaded successfully")
	return &Recognizer{
		engine:  engine,
		backend: backend,
		timeout: timeout,
		maxDim:  opts.MaxImageDimension,
		maxPix:  opts.MaxImagePixels,
	}, nil
}

// Backend returns the detector backend in use.
func (r *Recognizer) Backend() acceleration.Backend {
	return r.backend
}

// Ready reports whether the models are loaded.
func (r *Recognizer) Ready() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return !r.closed
}

// Close releases the recognizer resources. It waits up to the detect timeout
// for abandoned runtime calls to return; if they do not, the native engine
// is left open rather than freed under them.
func (r *Recognizer) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		r.inflight.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		r.engine.Close()
	case <-time.After(r.timeout):
		logging.Component("recognition").Warnf("Face runtime still busy after %s, leaving models loaded", r.timeout)
	}
	return nil
}

// DetectFaces runs the detector on JPEG bytes and returns every face found.
func (r *Recognizer) DetectFaces(ctx context.Context, jpegData []byte) ([]Face, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, ErrModelNotLoaded
	}

	raw, err := r.run(ctx, jpegData)
	if err != nil {
		return nil, err
	}

	faces := make([]Face, len(raw))
	for i, f := range raw {
		faces[i] = Face{
			BoundingBox: f.Rectangle,
			Landmarks:   append([]image.Point(nil), f.Shapes...),
			Descriptor:  toVector(f.Descriptor),
		}
	}

	logging.Debugf("Detected %d face(s) in image", len(faces))
	return faces, nil
}

// run calls the model runtime under the per-call timeout. A timed-out call
// keeps running in the background; only the request is failed.
func (r *Recognizer) run(parent context.Context, data []byte) ([]face.Face, error) {
	ctx, cancel := context.WithTimeout(parent, r.timeout)
	defer cancel()

	type result struct {
		faces []face.Face
		err   error
	}
	done := make(chan result, 1)

	r.inflight.Add(1)
	go func() {
		defer r.inflight.Done()
		var res result
		if r.backend == acceleration.BackendCNN {
			res.faces, res.err = r.engine.RecognizeCNN(data)
		} else {
			res.faces, res.err = r.engine.Recognize(data)
		}
		done <- res
	}()

	select {
	case res := <-done:
		if res.err != nil {
			var loadErr face.ImageLoadError
			if errors.As(res.err, &loadErr) {
				return nil, fmt.Errorf("%w: %v", ErrInvalidImage, res.err)
			}
			return nil, fmt.Errorf("%w: %v", ErrModelFailure, res.err)
		}
		return res.faces, nil
	case <-ctx.Done():
		// The caller's own deadline or cancellation wins over the call budget.
		if err := parent.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w after %s", ErrDetectionTimeout, r.timeout)
	}
}

// DetectSingleFace detects exactly one face in the image.
// Returns an error if no face or multiple faces are detected.
func (r *Recognizer) DetectSingleFace(ctx context.Context, jpegData []byte) (*Face, error) {
	faces, err := r.DetectFaces(ctx, jpegData)
	if err != nil {
		return nil, err
	}

	switch len(faces) {
	case 0:
		return nil, ErrNoFaceDetected
	case 1:
		return &faces[0], nil
	default:
		return nil, ErrMultipleFaces
	}
}

// Extract decodes a JPEG or PNG request image and returns its single face
// with landmarks and descriptor.
func (r *Recognizer) Extract(ctx context.Context, data []byte) (*Capture, error) {
	img, err := DecodeImage(data, r.maxDim, r.maxPix)
	if err != nil {
		return nil, err
	}

	f, err := r.DetectSingleFace(ctx, img.JPEG)
	if err != nil {
		return nil, err
	}

	return &Capture{Face: *f, Image: img}, nil
}

func toVector(d face.Descriptor) []float64 {
	v := make([]float64, len(d))
	for i, x := range d {
		v[i] = float64(x)
	}
	return v
}
