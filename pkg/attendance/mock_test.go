package attendance

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/MrCodeEU/attendface/pkg/database"
)

// MockRepository keeps records in memory and mirrors the MySQL constraints.
type MockRepository struct {
	mu      sync.Mutex
	records []*database.AttendanceRecord
	users   []int64
	nextID  int64

	CreateFunc func(ctx context.Context, rec *database.AttendanceRecord) error
}

func NewMockRepository(users ...int64) *MockRepository {
	return &MockRepository{users: users}
}

func (m *MockRepository) FindByDate(ctx context.Context, userID int64, day time.Time) (*database.AttendanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.UserID == userID && r.RecordDate.Equal(day) {
			c := *r
			return &c, nil
		}
	}
	return nil, database.ErrNoAttendance
}

func (m *MockRepository) Create(ctx context.Context, rec *database.AttendanceRecord) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, rec)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.UserID == rec.UserID && r.RecordDate.Equal(rec.RecordDate) {
			return database.ErrAttendanceExists
		}
	}
	m.nextID++
	rec.ID = m.nextID
	c := *rec
	m.records = append(m.records, &c)
	return nil
}

func (m *MockRepository) SetCheckOut(ctx context.Context, recordID int64, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.ID == recordID && r.CheckOutTime == nil {
			r.CheckOutTime = &at
			return true, nil
		}
	}
	return false, nil
}

func (m *MockRepository) List(ctx context.Context, userID int64, f database.AttendanceFilter) ([]database.AttendanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []database.AttendanceRecord
	for _, r := range m.records {
		switch {
		case r.UserID != userID:
		case !f.From.IsZero() && r.RecordDate.Before(f.From):
		case !f.To.IsZero() && r.RecordDate.After(f.To):
		case f.Status != "" && r.Status != f.Status:
		case f.CompleteOnly && (r.CheckInTime == nil || r.CheckOutTime == nil):
		default:
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecordDate.After(out[j].RecordDate) })
	return out, nil
}

func (m *MockRepository) UsersWithoutRecord(ctx context.Context, day time.Time) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []int64
	for _, id := range m.users {
		found := false
		for _, r := range m.records {
			if r.UserID == id && r.RecordDate.Equal(day) {
				found = true
				break
			}
		}
		if !found {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
