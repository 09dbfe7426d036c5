package dream

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Load is the agent's drive state as seen by the scheduler.
type Load struct {
	SocialHunger float64 // 0 content .. 1 craving conversation
	Energy       float64 // 0 exhausted .. 1 rested
}

// LoadProbe reports the current drive state. The drive simulator
// implements it.
type LoadProbe interface {
	Load() Load
}

// LoadFunc adapts a function to LoadProbe.
type LoadFunc func() Load

// Load calls f.
func (f LoadFunc) Load() Load { return f() }

// SchedulerConfig decides when the agent may dream.
type SchedulerConfig struct {
	// Interval is the minimum time between the end of one run and the
	// start of the next. Default: 15 minutes.
	Interval time.Duration

	// Tick is how often Run checks the conditions. Default: 30 seconds.
	Tick time.Duration

	// MaxSocialHunger blocks dreaming while the agent wants company.
	// Default: 0.6
	MaxSocialHunger float64

	// MinEnergy blocks dreaming while the agent is exhausted. Default: 0.2
	MinEnergy float64

	// Limit is passed to Dreamer.Run. Default: 1000
	Limit int

	// Timeout bounds a single run. Zero means no bound.
	Timeout time.Duration
}

// DefaultSchedulerConfig returns the standard cadence.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Interval:        15 * time.Minute,
		Tick:            30 * time.Second,
		MaxSocialHunger: 0.6,
		MinEnergy:       0.2,
		Limit:           1000,
	}
}

// Scheduler starts dreams in the background when the agent is idle enough.
// At most one dream runs at a time.
type Scheduler struct {
	dreamer *Dreamer
	probe   LoadProbe // nil: always idle
	config  SchedulerConfig
	now     func() time.Time

	mu      sync.Mutex
	running bool
	last    time.Time
	summary Summary
	wg      sync.WaitGroup

	// OnDone, if set, is called after every run.
	OnDone func(Summary, error)
}

// NewScheduler creates a scheduler. The interval clock starts now.
func NewScheduler(dreamer *Dreamer, probe LoadProbe, config SchedulerConfig) *Scheduler {
	def := DefaultSchedulerConfig()
	if config.Interval <= 0 {
		config.Interval = def.Interval
	}
	if config.Tick <= 0 {
		config.Tick = def.Tick
	}
	if config.Limit <= 0 {
		config.Limit = def.Limit
	}
	s := &Scheduler{
		dreamer: dreamer,
		probe:   probe,
		config:  config,
		now:     dreamer.config.now,
	}
	s.last = s.now()
	return s
}

// Due reports whether a dream would start now.
func (s *Scheduler) Due() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dueLocked()
}

func (s *Scheduler) dueLocked() bool {
	if s.running {
		return false
	}
	if s.now().Sub(s.last) < s.config.Interval {
		return false
	}
	if s.probe != nil {
		load := s.probe.Load()
		if load.SocialHunger > s.config.MaxSocialHunger || load.Energy < s.config.MinEnergy {
			return false
		}
	}
	return true
}

// Trigger starts a dream in the background if one is due and reports
// whether it did. The dream is cancelled with ctx.
func (s *Scheduler) Trigger(ctx context.Context) bool {
	s.mu.Lock()
	if !s.dueLocked() {
		s.mu.Unlock()
		return false
	}
	s.running = true
	s.mu.Unlock()

	s.start(ctx)
	return true
}

// Force starts a dream in the background unless one is already running,
// ignoring interval and load.
func (s *Scheduler) Force(ctx context.Context) bool {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return false
	}
	s.running = true
	s.mu.Unlock()

	s.start(ctx)
	return true
}

// RunNow runs a dream in the caller's goroutine unless one is already
// running, in which case it returns ErrRunning. A non-positive limit uses
// the configured Limit. Interval and load are ignored.
func (s *Scheduler) RunNow(ctx context.Context, limit int) (Summary, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return Summary{}, ErrRunning
	}
	s.running = true
	s.mu.Unlock()

	if limit <= 0 {
		limit = s.config.Limit
	}
	return s.run(ctx, limit)
}

func (s *Scheduler) start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if sum, err := s.run(ctx, s.config.Limit); err != nil {
			log.Warn().Err(err).Str("run", sum.RunID).Msg("dream failed")
		}
	}()
}

// run executes one reserved dream and releases the reservation.
func (s *Scheduler) run(ctx context.Context, limit int) (Summary, error) {
	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}

	sum, err := s.dreamer.Run(ctx, limit)

	s.mu.Lock()
	s.running = false
	if !errors.Is(err, ErrRunning) {
		s.last = s.now()
		s.summary = sum
	}
	s.mu.Unlock()

	if s.OnDone != nil {
		s.OnDone(sum, err)
	}
	return sum, err
}

// Running reports whether a dream is in progress.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Last returns the finish time and summary of the most recent run.
func (s *Scheduler) Last() (time.Time, Summary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.summary
}

// Wait blocks until the running dream, if any, has finished.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Run checks the conditions every Tick until ctx is done, then waits for
// the in-flight dream to stop.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.config.Tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.Wait()
			return nil
		case <-ticker.C:
			if s.Trigger(ctx) {
				log.Info().Msg("dream started")
			}
		}
	}
}
