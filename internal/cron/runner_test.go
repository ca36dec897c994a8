package cron

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gmsas95/medwatch/internal/detector"
	"github.com/gmsas95/medwatch/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingDetector struct {
	runs     atomic.Int32
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	delay    time.Duration
}

func (d *countingDetector) Run(ctx context.Context) *detector.RunSummary {
	n := d.runs.Add(1)
	cur := d.inFlight.Add(1)
	defer d.inFlight.Add(-1)
	for {
		prev := d.maxSeen.Load()
		if cur <= prev || d.maxSeen.CompareAndSwap(prev, cur) {
			break
		}
	}
	if d.delay > 0 {
		time.Sleep(d.delay)
	}
	return &detector.RunSummary{RunID: fmt.Sprintf("run-%d", n), Missed: int(n)}
}

type memHistory struct {
	mu   sync.Mutex
	recs []*store.RunRecord
	err  error
}

func (h *memHistory) SaveRun(ctx context.Context, rec *store.RunRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return h.err
	}
	h.recs = append(h.recs, rec)
	return nil
}

type memObserver struct {
	mu   sync.Mutex
	seen []*detector.RunSummary
}

func (o *memObserver) ObserveRun(s *detector.RunSummary) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seen = append(o.seen, s)
}

func TestRunOnce_SavesAndObserves(t *testing.T) {
	d := &countingDetector{}
	h := &memHistory{}
	o := &memObserver{}
	r := NewRunner(Config{}, d, h, o, zap.NewNop())

	sum := r.RunOnce(context.Background())

	assert.Equal(t, 1, sum.Missed)
	require.Len(t, h.recs, 1)
	assert.Equal(t, sum.RunID, h.recs[0].ID)
	assert.Len(t, o.seen, 1)
}

func TestRunOnce_HistoryErrorIsNotFatal(t *testing.T) {
	h := &memHistory{err: errors.New("disk full")}
	r := NewRunner(Config{}, &countingDetector{}, h, nil, zap.NewNop())

	assert.NotNil(t, r.RunOnce(context.Background()))
}

func TestRunner_StartStop(t *testing.T) {
	d := &countingDetector{}
	r := NewRunner(Config{Schedule: "@every 1h", RunOnStart: true}, d, nil, nil, zap.NewNop())

	require.NoError(t, r.Start())
	assert.True(t, r.IsRunning())
	assert.False(t, r.NextRun().IsZero())
	assert.Error(t, r.Start())

	assert.Eventually(t, func() bool { return d.runs.Load() == 1 }, time.Second, 10*time.Millisecond)

	r.Stop()
	assert.False(t, r.IsRunning())
	assert.True(t, r.NextRun().IsZero())
	r.Stop()
}

func TestRunner_StopWaitsForRunOnStart(t *testing.T) {
	d := &countingDetector{delay: 50 * time.Millisecond}
	h := &memHistory{}
	r := NewRunner(Config{Schedule: "@every 1h", RunOnStart: true}, d, h, nil, zap.NewNop())

	require.NoError(t, r.Start())
	assert.Eventually(t, func() bool { return d.inFlight.Load() == 1 }, time.Second, time.Millisecond)

	r.Stop()

	assert.Equal(t, int32(0), d.inFlight.Load())
	h.mu.Lock()
	defer h.mu.Unlock()
	assert.Len(t, h.recs, 1)
}

func TestRunner_RunOnceDuringStop(t *testing.T) {
	d := &countingDetector{delay: 20 * time.Millisecond}
	r := NewRunner(Config{Schedule: "@every 1h"}, d, nil, nil, zap.NewNop())
	require.NoError(t, r.Start())

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.RunOnce(context.Background())
	}()
	r.Stop()
	<-done

	assert.Equal(t, int32(1), d.runs.Load())
}

func TestRunner_InvalidSchedule(t *testing.T) {
	r := NewRunner(Config{Schedule: "every now and then"}, &countingDetector{}, nil, nil, zap.NewNop())
	assert.Error(t, r.Start())
	assert.False(t, r.IsRunning())
}

func TestRunOnce_DoesNotOverlap(t *testing.T) {
	d := &countingDetector{delay: 50 * time.Millisecond}
	r := NewRunner(Config{}, d, nil, nil, zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.RunOnce(context.Background())
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(3), d.runs.Load())
	assert.Equal(t, int32(1), d.maxSeen.Load())
}
