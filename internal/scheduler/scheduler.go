// Package scheduler turns the configured daily posting windows into selection jobs.
package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	appErrors "github.com/unclebandit/autoposter/internal/errors"
	"github.com/unclebandit/autoposter/internal/logging"
	"github.com/unclebandit/autoposter/internal/model"
	"github.com/unclebandit/autoposter/internal/queue"
)

// Window is a local time of day at which one post goes out.
type Window struct {
	Hour   int
	Minute int
}

func (w Window) String() string {
	return fmt.Sprintf("%02d:%02d", w.Hour, w.Minute)
}

// ParseWindows parses "HH:MM" entries. Malformed or repeated entries are configuration errors.
func ParseWindows(specs []string) ([]Window, error) {
	if len(specs) == 0 {
		return nil, appErrors.NewConfigurationError("POST_WINDOWS", "", "at least one window is required")
	}
	seen := make(map[Window]bool, len(specs))
	windows := make([]Window, 0, len(specs))
	for _, spec := range specs {
		w, err := parseWindow(strings.TrimSpace(spec))
		if err != nil {
			return nil, appErrors.NewConfigurationError("POST_WINDOWS", spec, err.Error())
		}
		if seen[w] {
			return nil, appErrors.NewConfigurationError("POST_WINDOWS", spec, "duplicate window")
		}
		seen[w] = true
		windows = append(windows, w)
	}
	return windows, nil
}

func parseWindow(spec string) (Window, error) {
	hh, mm, ok := strings.Cut(spec, ":")
	if !ok || len(hh) != 2 || len(mm) != 2 {
		return Window{}, fmt.Errorf("expected HH:MM")
	}
	hour, err := strconv.Atoi(hh)
	if err != nil || hour < 0 || hour > 23 {
		return Window{}, fmt.Errorf("hour must be 00-23")
	}
	minute, err := strconv.Atoi(mm)
	if err != nil || minute < 0 || minute > 59 {
		return Window{}, fmt.Errorf("minute must be 00-59")
	}
	return Window{Hour: hour, Minute: minute}, nil
}

// JobKey identifies one window firing: "YYYY-MM-DD|index|attempt", date in the scheduler's timezone.
func JobKey(date time.Time, windowIndex, attempt int) string {
	return fmt.Sprintf("%s|%d|%d", date.Format("2006-01-02"), windowIndex, attempt)
}

type Scheduler struct {
	broker  queue.Broker
	windows []Window
	loc     *time.Location
	now     func() time.Time
	logger  logging.Logger
}

type Option func(*Scheduler)

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

func New(broker queue.Broker, windows []Window, loc *time.Location, logger logging.Logger, opts ...Option) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = logging.Discard()
	}
	s := &Scheduler{
		broker:  broker,
		windows: windows,
		loc:     loc,
		now:     time.Now,
		logger:  logger.WithField("component", "scheduler"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Next returns the first window firing strictly after the given instant.
// A window inside a skipped DST hour fires at the instant time.Date normalises it to.
func (s *Scheduler) Next(after time.Time) (int, time.Time) {
	local := after.In(s.loc)
	bestIdx := -1
	var best time.Time
	for day := 0; day <= 2; day++ {
		for i, w := range s.windows {
			at := time.Date(local.Year(), local.Month(), local.Day()+day, w.Hour, w.Minute, 0, 0, s.loc)
			if !at.After(after) {
				continue
			}
			if bestIdx == -1 || at.Before(best) {
				bestIdx, best = i, at
			}
		}
		if bestIdx != -1 {
			break
		}
	}
	return bestIdx, best
}

// Trigger enqueues the selection job for window idx firing at the given instant.
// It reports false when the job key was already enqueued.
func (s *Scheduler) Trigger(ctx context.Context, idx int, at time.Time) (bool, error) {
	key := JobKey(at.In(s.loc), idx, 0)
	log := s.logger.WithFields(logging.Fields{"job_key": key, "window": s.windows[idx].String()})

	enqueued, err := s.broker.Enqueue(ctx, queue.Request{
		Queue:       queue.SelectionQueue,
		Key:         key,
		MaxAttempts: queue.DefaultMaxAttempts(queue.SelectionQueue),
		Payload: model.SelectionPayload{
			JobKey:        key,
			WindowIndex:   idx,
			ScheduledTime: at,
		},
	})
	if err != nil {
		return false, fmt.Errorf("enqueue selection %s: %w", key, err)
	}
	if !enqueued {
		log.Info("Selection job already enqueued")
		return false, nil
	}
	log.Info("Enqueued selection job")
	return true, nil
}

// Run fires every window until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	if len(s.windows) == 0 {
		return appErrors.NewConfigurationError("POST_WINDOWS", "", "at least one window is required")
	}
	s.logger.WithFields(logging.Fields{"windows": len(s.windows), "timezone": s.loc.String()}).Info("Scheduler started")

	after := s.now()
	for {
		idx, at := s.Next(after)
		wait := at.Sub(s.now())
		s.logger.WithFields(logging.Fields{"next": at.Format(time.RFC3339), "in": wait.Round(time.Second).String()}).Debug("Waiting for next window")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("Scheduler stopped")
			return nil
		case <-timer.C:
		}

		if _, err := s.Trigger(ctx, idx, at); err != nil {
			s.logger.WithError(err).Error("Failed to trigger window")
		}
		after = at
		if now := s.now(); now.After(after) {
			after = now
		}
	}
}
