package dream_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/affect-memory/dream"
	"github.com/becomeliminal/affect-memory/memory"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// blockingMemories holds every Scan until release is closed.
type blockingMemories struct {
	release chan struct{}
	scans   int
	mu      sync.Mutex
}

func (b *blockingMemories) Store(context.Context, string, memory.StoreMetadata) (*memory.Record, error) {
	return nil, nil
}

func (b *blockingMemories) Scan(ctx context.Context, _ int, _ memory.Kind) ([]memory.Record, error) {
	b.mu.Lock()
	b.scans++
	b.mu.Unlock()
	select {
	case <-b.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return nil, nil
}

func (b *blockingMemories) Delete(context.Context, ...string) error { return nil }

func newScheduler(t *testing.T, mem dream.Memories, load *dream.Load) (*dream.Scheduler, *clock) {
	t.Helper()
	c := &clock{t: now}
	cfg := dream.DefaultConfig()
	cfg.Now = c.Now
	probe := dream.LoadFunc(func() dream.Load { return *load })
	return dream.NewScheduler(dream.New(mem, nil, nil, cfg), probe, dream.DefaultSchedulerConfig()), c
}

func TestScheduler_Gating(t *testing.T) {
	load := &dream.Load{SocialHunger: 0.1, Energy: 0.9}
	s, c := newScheduler(t, &poisonStore{}, load)

	assert.False(t, s.Due(), "interval starts at construction")
	c.Advance(14 * time.Minute)
	assert.False(t, s.Due())
	c.Advance(time.Minute)
	assert.True(t, s.Due())

	load.SocialHunger = 0.61
	assert.False(t, s.Due(), "lonely agents stay awake")
	load.SocialHunger = 0.6
	assert.True(t, s.Due())

	load.Energy = 0.19
	assert.False(t, s.Due(), "exhausted agents stay awake")
	load.Energy = 0.2
	assert.True(t, s.Due())
}

func TestScheduler_TriggerRunsOnceAndResetsInterval(t *testing.T) {
	load := &dream.Load{Energy: 1}
	s, c := newScheduler(t, &poisonStore{}, load)

	var (
		mu   sync.Mutex
		runs []dream.Summary
	)
	s.OnDone = func(sum dream.Summary, err error) {
		assert.NoError(t, err)
		mu.Lock()
		runs = append(runs, sum)
		mu.Unlock()
	}

	assert.False(t, s.Trigger(context.Background()))
	c.Advance(20 * time.Minute)
	require.True(t, s.Trigger(context.Background()))
	s.Wait()

	mu.Lock()
	require.Len(t, runs, 1)
	mu.Unlock()
	last, sum := s.Last()
	assert.Equal(t, c.Now(), last)
	assert.Equal(t, runs[0].RunID, sum.RunID)
	assert.False(t, s.Due(), "interval restarts when a run ends")
}

func TestScheduler_OneDreamAtATime(t *testing.T) {
	mem := &blockingMemories{release: make(chan struct{})}
	load := &dream.Load{Energy: 1}
	s, c := newScheduler(t, mem, load)
	c.Advance(time.Hour)

	require.True(t, s.Force(context.Background()))
	assert.True(t, s.Running())
	assert.False(t, s.Force(context.Background()))
	assert.False(t, s.Trigger(context.Background()))

	close(mem.release)
	s.Wait()
	assert.False(t, s.Running())
	assert.Equal(t, 1, mem.scans)
}

func TestScheduler_RunNowExcludesOtherRuns(t *testing.T) {
	mem := &blockingMemories{release: make(chan struct{})}
	load := &dream.Load{Energy: 1}
	s, c := newScheduler(t, mem, load)
	c.Advance(time.Hour)

	done := make(chan error, 1)
	go func() {
		_, err := s.RunNow(context.Background(), 0)
		done <- err
	}()
	require.Eventually(t, s.Running, time.Second, 5*time.Millisecond)

	_, err := s.RunNow(context.Background(), 10)
	assert.ErrorIs(t, err, dream.ErrRunning)
	assert.False(t, s.Force(context.Background()))
	assert.False(t, s.Trigger(context.Background()))

	close(mem.release)
	require.NoError(t, <-done)
	assert.False(t, s.Running())
	assert.Equal(t, 1, mem.scans)

	last, _ := s.Last()
	assert.Equal(t, c.Now(), last)
	assert.False(t, s.Due(), "interval restarts after a synchronous run")
}

func TestScheduler_RunNowWhileDreamerBusy(t *testing.T) {
	mem := &blockingMemories{release: make(chan struct{})}
	c := &clock{t: now}
	cfg := dream.DefaultConfig()
	cfg.Now = c.Now
	d := dream.New(mem, nil, nil, cfg)
	s := dream.NewScheduler(d, nil, dream.DefaultSchedulerConfig())

	done := make(chan error, 1)
	go func() {
		_, err := d.Run(context.Background(), 10)
		done <- err
	}()
	require.Eventually(t, func() bool {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		return mem.scans == 1
	}, time.Second, 5*time.Millisecond)

	c.Advance(time.Minute)
	_, err := s.RunNow(context.Background(), 10)
	assert.ErrorIs(t, err, dream.ErrRunning)
	assert.False(t, s.Running(), "a refused run releases the reservation")
	last, _ := s.Last()
	assert.Equal(t, now, last, "a refused run does not reset the interval")

	close(mem.release)
	require.NoError(t, <-done)
}

func TestScheduler_ForceIgnoresLoad(t *testing.T) {
	load := &dream.Load{SocialHunger: 1, Energy: 0}
	s, _ := newScheduler(t, &poisonStore{}, load)

	assert.False(t, s.Due())
	require.True(t, s.Force(context.Background()))
	s.Wait()
}

func TestScheduler_RunStopsWithContext(t *testing.T) {
	mem := &blockingMemories{release: make(chan struct{})}
	load := &dream.Load{Energy: 1}
	s, _ := newScheduler(t, mem, load)
	require.True(t, s.Force(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()

	select {
	case <-done:
		t.Fatal("Run returned while a dream was still in flight")
	case <-time.After(50 * time.Millisecond):
	}
	close(mem.release)
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
}
