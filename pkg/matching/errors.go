package matching

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrCodeEU/attendface/pkg/recognition"
	"github.com/MrCodeEU/attendface/pkg/storage"
)

// ErrorKind identifies why a matching operation failed.
type ErrorKind string

const (
	KindInvalidImage          ErrorKind = "INVALID_IMAGE"
	KindNoFaceDetected        ErrorKind = "NO_FACE_DETECTED"
	KindMultipleFacesDetected ErrorKind = "MULTIPLE_FACES_DETECTED"
	KindFaceAlreadyRegistered ErrorKind = "FACE_ALREADY_REGISTERED"
	KindIdentityNotEnrolled   ErrorKind = "IDENTITY_NOT_ENROLLED"
	KindStoreUnavailable      ErrorKind = "STORE_UNAVAILABLE"
	KindModelFailure          ErrorKind = "MODEL_FAILURE"
)

// User-facing messages
var kindMessages = map[ErrorKind]string{
	KindInvalidImage:          "Invalid image file",
	KindNoFaceDetected:        "No face detected",
	KindMultipleFacesDetected: "Multiple faces detected",
	KindFaceAlreadyRegistered: "Face already registered",
	KindIdentityNotEnrolled:   "No face data enrolled for this user",
	KindStoreUnavailable:      "Face store is unavailable",
	KindModelFailure:          "Face recognition failed",
}

// Message returns a user-facing message for the kind.
func (k ErrorKind) Message() string {
	if msg, ok := kindMessages[k]; ok {
		return msg
	}
	return "Face recognition failed"
}

// IsClientError reports whether the kind is caused by the request rather
// than by the system.
func (k ErrorKind) IsClientError() bool {
	switch k {
	case KindStoreUnavailable, KindModelFailure:
		return false
	}
	return true
}

// Error is the single error type returned by Engine operations.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind.Message(), e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind.Message())
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so the Err* values below can be
// used with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Kind sentinels for errors.Is checks.
var (
	ErrInvalidImage          = &Error{Kind: KindInvalidImage}
	ErrNoFaceDetected        = &Error{Kind: KindNoFaceDetected}
	ErrMultipleFacesDetected = &Error{Kind: KindMultipleFacesDetected}
	ErrFaceAlreadyRegistered = &Error{Kind: KindFaceAlreadyRegistered}
	ErrIdentityNotEnrolled   = &Error{Kind: KindIdentityNotEnrolled}
	ErrStoreUnavailable      = &Error{Kind: KindStoreUnavailable}
	ErrModelFailure          = &Error{Kind: KindModelFailure}
)

// KindOf returns the kind carried by err, or "" when err is not an *Error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func newError(op string, kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// extractionError maps a recognition failure onto the taxonomy.
func extractionError(op string, err error) error {
	switch {
	case errors.Is(err, recognition.ErrInvalidImage):
		return newError(op, KindInvalidImage, err)
	case errors.Is(err, recognition.ErrNoFaceDetected):
		return newError(op, KindNoFaceDetected, err)
	case errors.Is(err, recognition.ErrMultipleFaces):
		return newError(op, KindMultipleFacesDetected, err)
	case errors.Is(err, recognition.ErrDetectionTimeout):
		return newError(op, KindModelFailure, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return newError(op, KindModelFailure, err)
	}
}

// storeError maps an embedding store failure onto the taxonomy.
func storeError(op string, err error) error {
	switch {
	case errors.Is(err, storage.ErrExists):
		return newError(op, KindFaceAlreadyRegistered, err)
	case errors.Is(err, storage.ErrNotFound):
		return newError(op, KindIdentityNotEnrolled, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return newError(op, KindStoreUnavailable, err)
	}
}
