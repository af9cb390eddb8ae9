package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ympact/typesense-sync/internal/differ"
	"github.com/ympact/typesense-sync/internal/migrate"
	"github.com/ympact/typesense-sync/internal/searchable"
)

type fakeUpdater struct {
	calls  atomic.Int32
	seen   atomic.Int32
	forced atomic.Bool
	err    error
}

func (f *fakeUpdater) UpdateAll(_ context.Context, models []searchable.Model, force bool) (migrate.Report, error) {
	f.calls.Add(1)
	f.seen.Store(int32(len(models)))
	if force {
		f.forced.Store(true)
	}
	var rep migrate.Report
	for _, m := range models {
		rep.Results = append(rep.Results, migrate.Result{
			Alias:   m.SearchableAs(),
			Outcome: &migrate.Outcome{Alias: m.SearchableAs(), Decision: differ.NeedsPatch},
			Err:     f.err,
		})
	}
	return rep, rep.Err()
}

type fakeSweeper struct{ calls atomic.Int32 }

func (f *fakeSweeper) Sweep(context.Context) (int, error) {
	f.calls.Add(1)
	return 2, nil
}

func models() []searchable.Model {
	return []searchable.Model{&searchable.Definition{Alias: "books"}, &searchable.Definition{Alias: "authors"}}
}

func TestRunOnce(t *testing.T) {
	up, sw := &fakeUpdater{}, &fakeSweeper{}
	w := NewWorker(up, sw, models, Config{Interval: time.Hour}, zerolog.Nop())

	rep := w.RunOnce(context.Background())
	require.NoError(t, rep.Err())
	assert.Len(t, rep.Results, 2)
	assert.EqualValues(t, 1, sw.calls.Load())
	assert.EqualValues(t, 2, up.seen.Load())
	assert.False(t, up.forced.Load(), "scheduled runs never force")
}

func TestRunOnce_ReportsFailures(t *testing.T) {
	up := &fakeUpdater{err: errors.New("backend down")}
	w := NewWorker(up, nil, models, Config{Interval: time.Hour}, zerolog.Nop())

	rep := w.RunOnce(context.Background())
	assert.Len(t, rep.Failed(), 2)
}

func TestRun_TicksUntilCancelled(t *testing.T) {
	up, sw := &fakeUpdater{}, &fakeSweeper{}
	w := NewWorker(up, sw, models, Config{Interval: 10 * time.Millisecond, RunOnStart: true}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	assert.Eventually(t, func() bool { return up.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
	assert.GreaterOrEqual(t, sw.calls.Load(), int32(3))
}
