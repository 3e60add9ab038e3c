package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	syncsvc "github.com/louiscrc/trakt-to-letterboxd/services/sync"
)

type fakeRunner struct {
	mu      sync.Mutex
	runs    int
	block   chan struct{} // when set, Run waits until closed
	summary *syncsvc.RunSummary
	err     error
}

func (r *fakeRunner) Run(ctx context.Context) (*syncsvc.RunSummary, error) {
	r.mu.Lock()
	r.runs++
	block := r.block
	r.mu.Unlock()

	if block != nil {
		<-block
	}
	if r.summary == nil {
		return &syncsvc.RunSummary{RunID: "test-run"}, r.err
	}
	return r.summary, r.err
}

func (r *fakeRunner) runCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestTriggerRunsOnce(t *testing.T) {
	runner := &fakeRunner{}
	service := NewService(runner, time.Hour)

	if err := service.Trigger(); err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}

	waitFor(t, func() bool { return service.Status().LastSummary != nil })

	if runner.runCount() != 1 {
		t.Errorf("expected one run, got %d", runner.runCount())
	}
	status := service.Status()
	if status.Running {
		t.Error("run should have finished")
	}
	if status.LastSummary.RunID != "test-run" {
		t.Errorf("unexpected summary: %+v", status.LastSummary)
	}
	if status.NextRunAt.IsZero() {
		t.Error("next run time should be set after a run")
	}
}

func TestTriggerWhileRunningConflicts(t *testing.T) {
	runner := &fakeRunner{block: make(chan struct{})}
	service := NewService(runner, time.Hour)

	if err := service.Trigger(); err != nil {
		t.Fatalf("first trigger failed: %v", err)
	}
	waitFor(t, func() bool { return service.Status().Running })

	if err := service.Trigger(); !errors.Is(err, ErrSyncInProgress) {
		t.Fatalf("expected ErrSyncInProgress, got %v", err)
	}

	close(runner.block)
	waitFor(t, func() bool { return !service.Status().Running })
}

func TestStartRunsImmediately(t *testing.T) {
	runner := &fakeRunner{}
	service := NewService(runner, time.Hour)

	if err := service.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer service.Stop(context.Background())

	waitFor(t, func() bool { return runner.runCount() >= 1 })
}

func TestStopWaitsForActiveRun(t *testing.T) {
	runner := &fakeRunner{block: make(chan struct{})}
	service := NewService(runner, time.Hour)

	if err := service.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitFor(t, func() bool { return service.Status().Running })

	done := make(chan struct{})
	go func() {
		service.Stop(context.Background())
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Stop returned while a run was still active")
	case <-time.After(50 * time.Millisecond):
	}

	close(runner.block)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after the run finished")
	}
}

func TestRunFailureStillRecordsSummary(t *testing.T) {
	runner := &fakeRunner{
		summary: &syncsvc.RunSummary{RunID: "failed-run", Error: "boom"},
		err:     errors.New("boom"),
	}
	service := NewService(runner, time.Hour)

	if err := service.Trigger(); err != nil {
		t.Fatalf("Trigger failed: %v", err)
	}
	waitFor(t, func() bool { return service.Status().LastSummary != nil })

	if got := service.Status().LastSummary.RunID; got != "failed-run" {
		t.Errorf("unexpected summary run id: %s", got)
	}
}
