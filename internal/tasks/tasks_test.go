package tasks

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestGoRunsDetached(t *testing.T) {
	c := NewCoordinator()
	var ran atomic.Bool
	c.Go("test", func(ctx context.Context) error {
		ran.Store(true)
		return nil
	})
	c.Wait()
	if !ran.Load() {
		t.Fatal("task did not run")
	}
}

func TestGoSurvivesErrorAndPanic(t *testing.T) {
	c := NewCoordinator()
	var after atomic.Bool

	c.Go("failing", func(ctx context.Context) error {
		return errors.New("boom")
	})
	c.Go("panicking", func(ctx context.Context) error {
		panic("boom")
	})
	c.Go("healthy", func(ctx context.Context) error {
		after.Store(true)
		return nil
	})

	c.Wait() // must not deadlock or re-panic
	if !after.Load() {
		t.Fatal("a failed task blocked later ones")
	}
}

func TestAfterDelaysExecution(t *testing.T) {
	c := NewCoordinator()
	start := time.Now()
	var elapsed atomic.Int64
	c.After(30*time.Millisecond, "delayed", func(ctx context.Context) error {
		elapsed.Store(int64(time.Since(start)))
		return nil
	})
	c.Wait()
	if time.Duration(elapsed.Load()) < 30*time.Millisecond {
		t.Fatalf("task ran too early: %v", time.Duration(elapsed.Load()))
	}
}

func TestWaitBlocksForInFlightTasks(t *testing.T) {
	c := NewCoordinator()
	var done atomic.Bool
	c.Go("slow", func(ctx context.Context) error {
		time.Sleep(20 * time.Millisecond)
		done.Store(true)
		return nil
	})
	c.Wait()
	if !done.Load() {
		t.Fatal("Wait returned before the task finished")
	}
}
