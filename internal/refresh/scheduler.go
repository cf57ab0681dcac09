package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/fernando-x/platform/libs/intelligence-engine/internal/observability"
)

// ErrJobNotFound is returned for an unknown job name.
var ErrJobNotFound = errors.New("job not found")

// Job names.
const (
	JobDailyMarketTrends  = "daily_market_trends"
	JobWeeklyDeepRefresh  = "weekly_deep_refresh"
	JobHourlyPermitsCheck = "hourly_permits_check"
)

// Refresher is the part of Manager the scheduler drives.
type Refresher interface {
	RefreshAll(ctx context.Context, force bool) ([]Result, error)
	RefreshSource(ctx context.Context, name string) (*Result, error)
}

// Job is a scheduled task. Schedule uses five-field cron syntax.
type Job struct {
	Name     string
	Schedule string
	Enabled  bool
	Run      func(ctx context.Context) error
}

// JobStatus describes a job for the status endpoint.
type JobStatus struct {
	Name      string     `json:"name"`
	Schedule  string     `json:"schedule"`
	Enabled   bool       `json:"enabled"`
	Scheduled bool       `json:"scheduled"`
	Running   bool       `json:"running"`
	NextRun   *time.Time `json:"next_run,omitempty"`
	LastRun   *time.Time `json:"last_run,omitempty"`
	LastError string     `json:"last_error,omitempty"`
}

type jobState struct {
	job       Job
	entry     cron.EntryID
	scheduled bool
	running   bool
	lastRun   *time.Time
	lastErr   error
}

// Scheduler runs refresh jobs on cron schedules in one time zone.
type Scheduler struct {
	mu     sync.Mutex
	cron   *cron.Cron
	loc    *time.Location
	jobs   []*jobState
	ctx    context.Context
	logger *observability.Logger
	now    func() time.Time
}

// DefaultJobs returns the refresh jobs. The hourly permit check starts
// disabled.
func DefaultJobs(r Refresher) []Job {
	return []Job{
		{
			Name:     JobDailyMarketTrends,
			Schedule: "0 6 * * *",
			Enabled:  true,
			Run: func(ctx context.Context) error {
				_, err := r.RefreshAll(ctx, false)
				return err
			},
		},
		{
			Name:     JobWeeklyDeepRefresh,
			Schedule: "0 2 * * 0",
			Enabled:  true,
			Run: func(ctx context.Context) error {
				_, err := r.RefreshAll(ctx, true)
				return err
			},
		},
		{
			Name:     JobHourlyPermitsCheck,
			Schedule: "0 * * * *",
			Enabled:  false,
			Run: func(ctx context.Context) error {
				_, err := r.RefreshSource(ctx, SourcePermits)
				return err
			},
		},
	}
}

// NewScheduler creates a scheduler for jobs in loc. A nil loc means UTC.
func NewScheduler(logger *observability.Logger, loc *time.Location, jobs []Job) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	s := &Scheduler{
		cron:   cron.New(cron.WithLocation(loc)),
		loc:    loc,
		logger: logger.WithComponent("scheduler"),
		now:    time.Now,
	}
	for _, j := range jobs {
		s.jobs = append(s.jobs, &jobState{job: j})
	}
	return s
}

// NextRun returns the first time after from that matches a five-field cron
// schedule, in from's time zone.
func NextRun(schedule string, from time.Time) (time.Time, error) {
	sched, err := cron.ParseStandard(schedule)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse schedule %q: %w", schedule, err)
	}
	return sched.Next(from), nil
}

// Start schedules every enabled job and starts the cron loop. Jobs run with
// ctx.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctx = ctx
	for _, st := range s.jobs {
		if !st.job.Enabled || st.scheduled {
			continue
		}
		if err := s.schedule(st); err != nil {
			return err
		}
	}
	s.cron.Start()
	s.logger.Info().Str("timezone", s.loc.String()).Int("jobs", len(s.jobs)).Msg("Scheduler started")
	return nil
}

// schedule adds st to the cron loop. Callers hold s.mu.
func (s *Scheduler) schedule(st *jobState) error {
	name := st.job.Name
	id, err := s.cron.AddFunc(st.job.Schedule, func() {
		if err := s.RunJob(s.ctx, name); err != nil {
			s.logger.Warn().Err(err).Str("job", name).Msg("Scheduled job did not run")
		}
	})
	if err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	st.entry = id
	st.scheduled = true
	s.logger.Info().Str("job", name).Str("schedule", st.job.Schedule).Msg("Job scheduled")
	return nil
}

// RunJob runs a job now, unless it is already running.
func (s *Scheduler) RunJob(ctx context.Context, name string) error {
	s.mu.Lock()
	st := s.find(name)
	if st == nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	if st.running {
		s.mu.Unlock()
		s.logger.Warn().Str("job", name).Msg("Job still running, skipped")
		return nil
	}
	st.running = true
	s.mu.Unlock()

	start := s.now()
	s.logger.Info().Str("job", name).Msg("Job started")
	err := st.job.Run(ctx)

	s.mu.Lock()
	st.running = false
	st.lastRun = &start
	st.lastErr = err
	s.mu.Unlock()

	if err != nil {
		s.logger.Error().Err(err).Str("job", name).Dur("duration", s.now().Sub(start)).Msg("Job failed")
		return err
	}
	s.logger.Info().Str("job", name).Dur("duration", s.now().Sub(start)).Msg("Job completed")
	return nil
}

// StopJob removes a job from the schedule.
func (s *Scheduler) StopJob(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.find(name)
	if st == nil {
		return fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	if st.scheduled {
		s.cron.Remove(st.entry)
		st.scheduled = false
		s.logger.Info().Str("job", name).Msg("Job stopped")
	}
	return nil
}

// StopAll unschedules every job and waits for running jobs to return.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	for _, st := range s.jobs {
		if st.scheduled {
			s.cron.Remove(st.entry)
			st.scheduled = false
		}
	}
	s.mu.Unlock()
	<-s.cron.Stop().Done()
	s.logger.Info().Msg("Scheduler stopped")
}

// JobStatus reports every job in registration order.
func (s *Scheduler) JobStatus() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().In(s.loc)
	out := make([]JobStatus, 0, len(s.jobs))
	for _, st := range s.jobs {
		js := JobStatus{
			Name:      st.job.Name,
			Schedule:  st.job.Schedule,
			Enabled:   st.job.Enabled,
			Scheduled: st.scheduled,
			Running:   st.running,
			LastRun:   st.lastRun,
		}
		if st.scheduled {
			if next, err := NextRun(st.job.Schedule, now); err == nil {
				js.NextRun = &next
			}
		}
		if st.lastErr != nil {
			js.LastError = st.lastErr.Error()
		}
		out = append(out, js)
	}
	return out
}

func (s *Scheduler) find(name string) *jobState {
	for _, st := range s.jobs {
		if st.job.Name == name {
			return st
		}
	}
	return nil
}
