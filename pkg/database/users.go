package database

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

var (
	// ErrUserNotFound is returned when no user matches the lookup.
	ErrUserNotFound = errors.New("user not found")
	// ErrEmailTaken is returned when an email is already registered.
	ErrEmailTaken = errors.New("email already registered")
)

// UserRepository reads and writes users.
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a repository on db.
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts u and fills in its ID.
func (r *UserRepository) Create(ctx context.Context, u *User) error {
	if u.Role == "" {
		u.Role = RoleEmployee
	}
	if err := r.db.gorm.WithContext(ctx).Create(u).Error; err != nil {
		if isDuplicateKey(err) {
			return ErrEmailTaken
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*User, error) {
	return r.first(ctx, "user_id = ?", id)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	return r.first(ctx, "email = ?", email)
}

func (r *UserRepository) first(ctx context.Context, query string, arg interface{}) (*User, error) {
	var u User
	err := r.db.gorm.WithContext(ctx).Where(query, arg).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// DisplayName returns the full name for id.
func (r *UserRepository) DisplayName(ctx context.Context, id int64) (string, error) {
	var name string
	err := r.db.gorm.WithContext(ctx).Model(&User{}).
		Where("user_id = ?", id).
		Limit(1).
		Pluck("full_name", &name).Error
	if err != nil {
		return "", fmt.Errorf("display name: %w", err)
	}
	if name == "" {
		return "", ErrUserNotFound
	}
	return name, nil
}
