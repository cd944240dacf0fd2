package attendance

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/MrCodeEU/attendface/pkg/logging"
)

// Scheduler runs the daily absent sweep.
type Scheduler struct {
	cron    *gocron.Scheduler
	service *Service
	timeout time.Duration
	now     func() time.Time
}

// NewScheduler registers MarkAbsent for today under the cron expression expr.
func NewScheduler(service *Service, expr string) (*Scheduler, error) {
	s := &Scheduler{
		cron:    gocron.NewScheduler(time.Local),
		service: service,
		timeout: 5 * time.Minute,
		now:     time.Now,
	}
	s.cron.SingletonModeAll()

	if _, err := s.cron.Cron(expr).Do(s.sweep); err != nil {
		return nil, fmt.Errorf("invalid absent sweep schedule %q: %w", expr, err)
	}
	return s, nil
}

func (s *Scheduler) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if _, err := s.service.MarkAbsent(ctx, s.now()); err != nil {
		logging.Component("attendance").WithError(err).Error("Absent sweep failed")
	}
}

// Start runs the scheduler in the background.
func (s *Scheduler) Start() {
	s.cron.StartAsync()
	logging.Component("attendance").Info("Absent sweep scheduled")
}

// Stop halts the scheduler.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}
