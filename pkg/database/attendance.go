package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

var (
	// ErrNoAttendance is returned when a user has no record for a day.
	ErrNoAttendance = errors.New("attendance record not found")
	// ErrAttendanceExists is returned when a day already has a record.
	ErrAttendanceExists = errors.New("attendance record already exists")
)

const dateLayout = "2006-01-02"

// AttendanceFilter narrows a record listing. Zero values mean no limit.
type AttendanceFilter struct {
	From         time.Time
	To           time.Time
	Status       AttendanceStatus
	CompleteOnly bool
}

// AttendanceRepository reads and writes attendance records.
type AttendanceRepository struct {
	db *DB
}

// NewAttendanceRepository creates a repository on db.
func NewAttendanceRepository(db *DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// FindByDate returns userID's record for day.
func (r *AttendanceRepository) FindByDate(ctx context.Context, userID int64, day time.Time) (*AttendanceRecord, error) {
	var rec AttendanceRecord
	err := r.db.gorm.WithContext(ctx).
		Where("user_id = ? AND record_date = ?", userID, day.Format(dateLayout)).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoAttendance
	}
	if err != nil {
		return nil, fmt.Errorf("find attendance: %w", err)
	}
	return &rec, nil
}

// Create inserts rec. A second record for the same user and day fails with
// ErrAttendanceExists.
func (r *AttendanceRepository) Create(ctx context.Context, rec *AttendanceRecord) error {
	if err := r.db.gorm.WithContext(ctx).Create(rec).Error; err != nil {
		if isDuplicateKey(err) {
			return ErrAttendanceExists
		}
		return fmt.Errorf("create attendance: %w", err)
	}
	return nil
}

// SetCheckOut stores the check-out time if none is set yet. It reports
// whether the row was updated.
func (r *AttendanceRepository) SetCheckOut(ctx context.Context, recordID int64, at time.Time) (bool, error) {
	result := r.db.gorm.WithContext(ctx).Model(&AttendanceRecord{}).
		Where("record_id = ? AND check_out_time IS NULL", recordID).
		Update("check_out_time", at)
	if result.Error != nil {
		return false, fmt.Errorf("check out: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// List returns userID's records matching f, newest first.
func (r *AttendanceRepository) List(ctx context.Context, userID int64, f AttendanceFilter) ([]AttendanceRecord, error) {
	q := r.db.gorm.WithContext(ctx).Where("user_id = ?", userID)
	if !f.From.IsZero() {
		q = q.Where("record_date >= ?", f.From.Format(dateLayout))
	}
	if !f.To.IsZero() {
		q = q.Where("record_date <= ?", f.To.Format(dateLayout))
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.CompleteOnly {
		q = q.Where("check_in_time IS NOT NULL AND check_out_time IS NOT NULL")
	}

	var recs []AttendanceRecord
	if err := q.Order("record_date DESC").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list attendance: %w", err)
	}
	return recs, nil
}

// UsersWithoutRecord returns the ids of users with no record on day.
func (r *AttendanceRepository) UsersWithoutRecord(ctx context.Context, day time.Time) ([]int64, error) {
	present := r.db.gorm.Model(&AttendanceRecord{}).
		Select("user_id").
		Where("record_date = ?", day.Format(dateLayout))

	var ids []int64
	err := r.db.gorm.WithContext(ctx).Model(&User{}).
		Where("user_id NOT IN (?)", present).
		Order("user_id ASC").
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("users without attendance: %w", err)
	}
	return ids, nil
}
