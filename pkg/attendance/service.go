// Package attendance records daily check-ins and check-outs and derives
// history and working hours from them.
package attendance

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/MrCodeEU/attendface/pkg/database"
	"github.com/MrCodeEU/attendface/pkg/logging"
)

var (
	// ErrAlreadyCheckedIn is returned when today's record already exists.
	ErrAlreadyCheckedIn = errors.New("already checked in today")
	// ErrNotCheckedIn is returned on check-out without a check-in today.
	ErrNotCheckedIn = errors.New("no check-in found for today")
	// ErrAlreadyCheckedOut is returned on a second check-out.
	ErrAlreadyCheckedOut = errors.New("already checked out today")
	// ErrInvalidFilter is returned for an unknown status or an inverted range.
	ErrInvalidFilter = errors.New("invalid attendance filter")
)

// Repository is the persistence the service needs.
type Repository interface {
	FindByDate(ctx context.Context, userID int64, day time.Time) (*database.AttendanceRecord, error)
	Create(ctx context.Context, rec *database.AttendanceRecord) error
	SetCheckOut(ctx context.Context, recordID int64, at time.Time) (bool, error)
	List(ctx context.Context, userID int64, f database.AttendanceFilter) ([]database.AttendanceRecord, error)
	UsersWithoutRecord(ctx context.Context, day time.Time) ([]int64, error)
}

// Action tells which half of the day a scan recorded.
type Action string

const (
	ActionCheckIn  Action = "check_in"
	ActionCheckOut Action = "check_out"
)

// ScanResult is the outcome of Scan.
type ScanResult struct {
	Action Action
	Record *database.AttendanceRecord
}

// Service applies the attendance rules.
type Service struct {
	repo      Repository
	lateAfter time.Duration
}

// NewService creates a service. lateAfter is the HH:MM wall-clock time after
// which a check-in counts as late.
func NewService(repo Repository, lateAfter string) (*Service, error) {
	t, err := time.Parse("15:04", lateAfter)
	if err != nil {
		return nil, fmt.Errorf("invalid late_after %q: %w", lateAfter, err)
	}
	return &Service{
		repo:      repo,
		lateAfter: time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute,
	}, nil
}

// Day returns the calendar date of t as a UTC midnight.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func (s *Service) statusAt(now time.Time) database.AttendanceStatus {
	sinceMidnight := time.Duration(now.Hour())*time.Hour +
		time.Duration(now.Minute())*time.Minute +
		time.Duration(now.Second())*time.Second
	if sinceMidnight > s.lateAfter {
		return database.StatusLate
	}
	return database.StatusOnTime
}

// CheckIn opens today's record for userID.
func (s *Service) CheckIn(ctx context.Context, userID int64, now time.Time) (*database.AttendanceRecord, error) {
	day := Day(now)
	if _, err := s.repo.FindByDate(ctx, userID, day); err == nil {
		return nil, ErrAlreadyCheckedIn
	} else if !errors.Is(err, database.ErrNoAttendance) {
		return nil, err
	}

	at := now
	rec := &database.AttendanceRecord{
		UserID:      userID,
		RecordDate:  day,
		CheckInTime: &at,
		Status:      s.statusAt(now),
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		if errors.Is(err, database.ErrAttendanceExists) {
			return nil, ErrAlreadyCheckedIn
		}
		return nil, err
	}

	logging.Component("attendance").WithFields(logging.Fields{
		"user":   userID,
		"status": rec.Status,
	}).Info("Checked in")
	return rec, nil
}

// CheckOut closes today's record for userID.
func (s *Service) CheckOut(ctx context.Context, userID int64, now time.Time) (*database.AttendanceRecord, error) {
	rec, err := s.repo.FindByDate(ctx, userID, Day(now))
	if errors.Is(err, database.ErrNoAttendance) {
		return nil, ErrNotCheckedIn
	}
	if err != nil {
		return nil, err
	}
	return s.closeRecord(ctx, rec, now)
}

func (s *Service) closeRecord(ctx context.Context, rec *database.AttendanceRecord, now time.Time) (*database.AttendanceRecord, error) {
	if rec.CheckInTime == nil {
		return nil, ErrNotCheckedIn
	}
	if rec.CheckOutTime != nil {
		return nil, ErrAlreadyCheckedOut
	}

	updated, err := s.repo.SetCheckOut(ctx, rec.ID, now)
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, ErrAlreadyCheckedOut
	}

	at := now
	rec.CheckOutTime = &at
	logging.Component("attendance").WithField("user", rec.UserID).Info("Checked out")
	return rec, nil
}

// Scan checks userID in when there is no record today and out otherwise.
func (s *Service) Scan(ctx context.Context, userID int64, now time.Time) (*ScanResult, error) {
	rec, err := s.repo.FindByDate(ctx, userID, Day(now))
	if errors.Is(err, database.ErrNoAttendance) {
		rec, err := s.CheckIn(ctx, userID, now)
		if err != nil {
			return nil, err
		}
		return &ScanResult{Action: ActionCheckIn, Record: rec}, nil
	}
	if err != nil {
		return nil, err
	}

	rec, err = s.closeRecord(ctx, rec, now)
	if err != nil {
		return nil, err
	}
	return &ScanResult{Action: ActionCheckOut, Record: rec}, nil
}

// Filter selects records for History and WorkingHours.
type Filter struct {
	From   time.Time
	To     time.Time
	Status database.AttendanceStatus
}

func (f Filter) validate() error {
	if f.Status != "" && !f.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidFilter, f.Status)
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		return fmt.Errorf("%w: end date before start date", ErrInvalidFilter)
	}
	return nil
}

// History returns userID's records, newest first.
func (s *Service) History(ctx context.Context, userID int64, f Filter) ([]database.AttendanceRecord, error) {
	if err := f.validate(); err != nil {
		return nil, err
	}
	return s.repo.List(ctx, userID, database.AttendanceFilter{From: f.From, To: f.To, Status: f.Status})
}

// WorkingHours returns hours worked per day (YYYY-MM-DD), rounded to two
// decimals. Days without both a check-in and a check-out are omitted.
func (s *Service) WorkingHours(ctx context.Context, userID int64, from, to time.Time) (map[string]float64, error) {
	if err := (Filter{From: from, To: to}).validate(); err != nil {
		return nil, err
	}
	recs, err := s.repo.List(ctx, userID, database.AttendanceFilter{From: from, To: to, CompleteOnly: true})
	if err != nil {
		return nil, err
	}

	hours := make(map[string]float64, len(recs))
	for _, r := range recs {
		if r.CheckInTime == nil || r.CheckOutTime == nil {
			continue
		}
		h := r.CheckOutTime.Sub(*r.CheckInTime).Hours()
		hours[r.RecordDate.Format("2006-01-02")] = math.Round(h*100) / 100
	}
	return hours, nil
}

// MarkAbsent inserts an absent record for every user without one on day and
// returns how many were written.
func (s *Service) MarkAbsent(ctx context.Context, day time.Time) (int, error) {
	day = Day(day)
	ids, err := s.repo.UsersWithoutRecord(ctx, day)
	if err != nil {
		return 0, err
	}

	marked := 0
	for _, id := range ids {
		err := s.repo.Create(ctx, &database.AttendanceRecord{
			UserID:     id,
			RecordDate: day,
			Status:     database.StatusAbsent,
		})
		if errors.Is(err, database.ErrAttendanceExists) {
			continue
		}
		if err != nil {
			return marked, fmt.Errorf("mark user %d absent: %w", id, err)
		}
		marked++
	}

	logging.Component("attendance").WithFields(logging.Fields{
		"date":   day.Format("2006-01-02"),
		"marked": marked,
	}).Info("Absent sweep finished")
	return marked, nil
}
