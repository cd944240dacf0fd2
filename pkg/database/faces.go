package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/MrCodeEU/attendface/pkg/storage"
)

// FaceRepository stores embeddings in the face_embeddings table.
// It implements storage.EmbeddingStore.
type FaceRepository struct {
	db *DB
}

var _ storage.EmbeddingStore = (*FaceRepository)(nil)

// NewFaceRepository creates a repository on db.
func NewFaceRepository(db *DB) *FaceRepository {
	return &FaceRepository{db: db}
}

func (r *FaceRepository) Get(ctx context.Context, key int64) (*storage.Embedding, error) {
	var row FaceEmbedding
	err := r.db.gorm.WithContext(ctx).Where("user_id = ?", key).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrStorageAccess, err)
	}
	e, err := toEmbedding(row)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *FaceRepository) GetAll(ctx context.Context) ([]storage.Embedding, error) {
	var rows []FaceEmbedding
	if err := r.db.gorm.WithContext(ctx).Order("user_id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrStorageAccess, err)
	}

	out := make([]storage.Embedding, 0, len(rows))
	for _, row := range rows {
		e, err := toEmbedding(row)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (r *FaceRepository) Put(ctx context.Context, e storage.Embedding) error {
	if err := e.Validate(); err != nil {
		return err
	}
	encoding, err := json.Marshal(e.Vector)
	if err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidEmbedding, err)
	}

	row := FaceEmbedding{
		UserID:         e.IdentityKey,
		FaceID:         e.FaceID,
		Encoding:       encoding,
		ReferenceImage: e.ReferenceImage,
		CreatedAt:      e.CreatedAt,
	}
	if err := r.db.gorm.WithContext(ctx).Create(&row).Error; err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("%w: identity %d", storage.ErrExists, e.IdentityKey)
		}
		return fmt.Errorf("%w: %v", storage.ErrStorageAccess, err)
	}
	return nil
}

func (r *FaceRepository) Delete(ctx context.Context, key int64) (bool, error) {
	result := r.db.gorm.WithContext(ctx).Where("user_id = ?", key).Delete(&FaceEmbedding{})
	if result.Error != nil {
		return false, fmt.Errorf("%w: %v", storage.ErrStorageAccess, result.Error)
	}
	return result.RowsAffected > 0, nil
}

// Count returns the number of enrolled identities.
func (r *FaceRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.gorm.WithContext(ctx).Model(&FaceEmbedding{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("%w: %v", storage.ErrStorageAccess, err)
	}
	return n, nil
}

func toEmbedding(row FaceEmbedding) (storage.Embedding, error) {
	var vector []float64
	if err := json.Unmarshal(row.Encoding, &vector); err != nil {
		return storage.Embedding{}, fmt.Errorf("%w: identity %d has an unreadable encoding: %v",
			storage.ErrStorageAccess, row.UserID, err)
	}
	return storage.Embedding{
		IdentityKey:    row.UserID,
		FaceID:         row.FaceID,
		Vector:         vector,
		ReferenceImage: row.ReferenceImage,
		CreatedAt:      row.CreatedAt,
	}, nil
}
