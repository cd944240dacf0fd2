// Package matching implements enrollment, 1-to-N recognition, 1-to-1
// verification and deletion of face embeddings.
//
// Every operation runs the same pipeline: the request image is reduced to a
// single face descriptor, compared by plain L2 distance against stored
// descriptors, and decided against a fixed tolerance (inclusive). Failures
// are reported as *Error values carrying an ErrorKind.
package matching

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MrCodeEU/attendface/pkg/logging"
	"github.com/MrCodeEU/attendface/pkg/recognition"
	"github.com/MrCodeEU/attendface/pkg/storage"
)

// DefaultTolerance is the dlib-recommended match threshold.
const DefaultTolerance = 0.6

// DefaultCropPadding is the padding in pixels added around audit crops.
const DefaultCropPadding = 20

// Extractor reduces a request image to exactly one face.
type Extractor interface {
	Extract(ctx context.Context, data []byte) (*recognition.Capture, error)
}

// CropWriter persists audit crops.
type CropWriter interface {
	Save(key int64, jpegData []byte) (string, error)
	Remove(path string) error
}

// Options configures an Engine.
type Options struct {
	Tolerance      float64
	DuplicateCheck bool
	CropPadding    int
}

// DefaultOptions returns the standard engine settings.
func DefaultOptions() Options {
	return Options{
		Tolerance:      DefaultTolerance,
		DuplicateCheck: true,
		CropPadding:    DefaultCropPadding,
	}
}

// MatchResult is the outcome of Recognize. IdentityKey and Distance are
// only meaningful when Candidates > 0; IdentityKey is the nearest identity
// and Matched reports whether it is within tolerance.
type MatchResult struct {
	Matched     bool
	IdentityKey int64
	Distance    float64
	Candidates  int
}

// VerifyResult is the outcome of Verify.
type VerifyResult struct {
	Verified bool
	Distance float64
}

// Engine is immutable after construction and safe for concurrent use.
type Engine struct {
	extractor Extractor
	store     storage.EmbeddingStore
	crops     CropWriter
	opts      Options
	now       func() time.Time
}

// NewEngine wires an engine. crops may be nil to disable audit crops.
func NewEngine(extractor Extractor, store storage.EmbeddingStore, crops CropWriter, opts Options) (*Engine, error) {
	if extractor == nil || store == nil {
		return nil, errors.New("matching: extractor and store are required")
	}
	if opts.Tolerance <= 0 {
		return nil, fmt.Errorf("matching: tolerance must be positive, got %f", opts.Tolerance)
	}
	if opts.CropPadding < 0 {
		opts.CropPadding = 0
	}
	return &Engine{
		extractor: extractor,
		store:     store,
		crops:     crops,
		opts:      opts,
		now:       time.Now,
	}, nil
}

// Tolerance returns the configured match threshold.
func (e *Engine) Tolerance() float64 {
	return e.opts.Tolerance
}

func (e *Engine) within(distance float64) bool {
	return distance <= e.opts.Tolerance
}

// Enroll stores the descriptor of the single face in image under key.
// It fails with FaceAlreadyRegistered if key already has an embedding or,
// with duplicate checking on, if the face matches any enrolled identity.
func (e *Engine) Enroll(ctx context.Context, key int64, image []byte) (*storage.Embedding, error) {
	const op = "enroll"
	log := logging.Component("matching").WithField("identity", key)

	capture, err := e.extractor.Extract(ctx, image)
	if err != nil {
		return nil, extractionError(op, err)
	}

	if _, err := e.store.Get(ctx, key); err == nil {
		return nil, newError(op, KindFaceAlreadyRegistered, fmt.Errorf("identity %d already enrolled", key))
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, storeError(op, err)
	}

	if e.opts.DuplicateCheck {
		all, err := e.store.GetAll(ctx)
		if err != nil {
			return nil, storeError(op, err)
		}
		if len(all) > 0 {
			best, err := nearest(capture.Face.Descriptor, all)
			if err != nil {
				return nil, newError(op, KindStoreUnavailable, err)
			}
			if e.within(best.distance) {
				log.WithField("matched", best.identityKey).Warnf("Face already registered (distance %.4f)", best.distance)
				return nil, newError(op, KindFaceAlreadyRegistered,
					fmt.Errorf("face matches identity %d (distance %.4f)", best.identityKey, best.distance))
			}
		}
	}

	record := storage.Embedding{
		IdentityKey: key,
		FaceID:      uuid.NewString(),
		Vector:      append([]float64(nil), capture.Face.Descriptor...),
		CreatedAt:   e.now().UTC(),
	}
	record.ReferenceImage = e.saveCrop(capture, key)

	if err := e.store.Put(ctx, record); err != nil {
		if record.ReferenceImage != "" {
			if rmErr := e.crops.Remove(record.ReferenceImage); rmErr != nil {
				log.WithError(rmErr).Warn("Failed to remove audit crop after store failure")
			}
		}
		return nil, storeError(op, err)
	}

	log.WithField("face_id", record.FaceID).Info("Face enrolled")
	return &record, nil
}

// saveCrop writes the padded face crop. Failures are logged and yield an
// empty path; they never fail the enrollment.
func (e *Engine) saveCrop(capture *recognition.Capture, key int64) string {
	if e.crops == nil || capture.Image == nil {
		return ""
	}
	log := logging.Component("matching").WithField("identity", key)

	crop, err := recognition.CropFace(capture.Image.Pixels, capture.Face.BoundingBox, e.opts.CropPadding)
	if err != nil {
		log.WithError(err).Warn("Audit crop skipped")
		return ""
	}
	data, err := recognition.EncodeJPEG(crop)
	if err != nil {
		log.WithError(err).Warn("Audit crop encoding failed")
		return ""
	}
	path, err := e.crops.Save(key, data)
	if err != nil {
		log.WithError(err).Warn("Audit crop write failed")
		return ""
	}
	return path
}

// Recognize finds the nearest enrolled identity for the face in image.
// An empty store yields an unmatched result without inspecting the image.
func (e *Engine) Recognize(ctx context.Context, image []byte) (*MatchResult, error) {
	const op = "recognize"

	all, err := e.store.GetAll(ctx)
	if err != nil {
		return nil, storeError(op, err)
	}
	if len(all) == 0 {
		return &MatchResult{}, nil
	}

	capture, err := e.extractor.Extract(ctx, image)
	if err != nil {
		return nil, extractionError(op, err)
	}

	best, err := nearest(capture.Face.Descriptor, all)
	if err != nil {
		return nil, newError(op, KindStoreUnavailable, err)
	}

	result := &MatchResult{
		Matched:     e.within(best.distance),
		IdentityKey: best.identityKey,
		Distance:    best.distance,
		Candidates:  len(all),
	}
	logging.Component("matching").WithFields(logging.Fields{
		"nearest":  best.identityKey,
		"distance": fmt.Sprintf("%.4f", best.distance),
		"matched":  result.Matched,
	}).Debug("Recognition decided")
	return result, nil
}

// Verify compares the face in image with the embedding stored for key.
func (e *Engine) Verify(ctx context.Context, key int64, image []byte) (*VerifyResult, error) {
	const op = "verify"

	stored, err := e.store.Get(ctx, key)
	if err != nil {
		return nil, storeError(op, err)
	}

	capture, err := e.extractor.Extract(ctx, image)
	if err != nil {
		return nil, extractionError(op, err)
	}

	d, err := Distance(capture.Face.Descriptor, stored.Vector)
	if err != nil {
		return nil, newError(op, KindStoreUnavailable, err)
	}

	return &VerifyResult{Verified: e.within(d), Distance: d}, nil
}

// Delete removes the embedding for key. It reports false when nothing was
// stored. Audit crops are kept.
func (e *Engine) Delete(ctx context.Context, key int64) (bool, error) {
	deleted, err := e.store.Delete(ctx, key)
	if err != nil {
		return false, storeError("delete", err)
	}
	if deleted {
		logging.Component("matching").WithField("identity", key).Info("Face deleted")
	}
	return deleted, nil
}

// List returns every enrolled embedding ordered by identity key.
func (e *Engine) List(ctx context.Context) ([]storage.Embedding, error) {
	all, err := e.store.GetAll(ctx)
	if err != nil {
		return nil, storeError("list", err)
	}
	return all, nil
}
