// Package tasks runs best-effort post-response work. Tasks are detached from
// the request that spawned them: the user-facing reply never waits on one,
// and a failed task is logged, not retried.
package tasks

import (
	"context"
	"log"
	"sync"
	"time"
)

type Coordinator struct {
	wg sync.WaitGroup
}

func NewCoordinator() *Coordinator {
	return &Coordinator{}
}

// Go runs fn in the background. stage labels the log line on failure or
// panic. The context passed to fn is independent of any request context, so
// an already-sent reply cannot cancel the work.
func (c *Coordinator) Go(stage string, fn func(ctx context.Context) error) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Printf("background task panic: stage=%s: %v", stage, r)
			}
		}()
		if err := fn(context.Background()); err != nil {
			log.Printf("background task failed: stage=%s: %v", stage, err)
		}
	}()
}

// After runs fn like Go after the given delay.
func (c *Coordinator) After(delay time.Duration, stage string, fn func(ctx context.Context) error) {
	c.Go(stage, func(ctx context.Context) error {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		return fn(ctx)
	})
}

// Wait blocks until every scheduled task has finished. Used on shutdown and
// in tests.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}
