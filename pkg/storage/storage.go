// Package storage persists face embeddings keyed by identity.
// It defines the EmbeddingStore contract shared by every backend and ships
// an encrypted file backend, an in-memory backend and the audit crop writer.
package storage

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// VectorDimension is the length of every stored descriptor.
const VectorDimension = 128

// ErrNotFound is returned when no embedding is stored for an identity.
var ErrNotFound = errors.New("embedding not found")

// ErrExists is returned when an identity already has an embedding.
var ErrExists = errors.New("embedding already exists")

// ErrInvalidEmbedding is returned when a record fails validation before a write.
var ErrInvalidEmbedding = errors.New("invalid embedding")

// ErrStorageAccess is returned when the backend cannot be reached.
var ErrStorageAccess = errors.New("failed to access storage")

// ErrEncryption is returned when encryption/decryption fails.
var ErrEncryption = errors.New("encryption error")

// Embedding is the stored descriptor for one identity.
type Embedding struct {
	IdentityKey    int64     `json:"identity_key"`
	FaceID         string    `json:"face_id"`
	Vector         []float64 `json:"vector"`
	ReferenceImage string    `json:"reference_image,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Clone returns a copy that shares no memory with e.
func (e Embedding) Clone() Embedding {
	e.Vector = append([]float64(nil), e.Vector...)
	return e
}

// Validate checks the invariants every backend enforces on Put.
func (e Embedding) Validate() error {
	if len(e.Vector) != VectorDimension {
		return fmt.Errorf("%w: vector has %d values, want %d", ErrInvalidEmbedding, len(e.Vector), VectorDimension)
	}
	for i, v := range e.Vector {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: value %d is not finite", ErrInvalidEmbedding, i)
		}
	}
	if e.FaceID == "" {
		return fmt.Errorf("%w: missing face id", ErrInvalidEmbedding)
	}
	return nil
}

// EmbeddingStore is the persistence contract used by the matching engine.
// Implementations return copies, so callers may not mutate stored vectors.
type EmbeddingStore interface {
	// Get returns the embedding for key or ErrNotFound.
	Get(ctx context.Context, key int64) (*Embedding, error)
	// GetAll returns every stored embedding ordered by identity key.
	GetAll(ctx context.Context) ([]Embedding, error)
	// Put stores a new embedding. It fails with ErrExists if the identity
	// already has one.
	Put(ctx context.Context, e Embedding) error
	// Delete removes the embedding for key and reports whether one existed.
	Delete(ctx context.Context, key int64) (bool, error)
}
