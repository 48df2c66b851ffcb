package service

import (
	"context"
	"fmt"
	"sync"

	"gymtrack/internal/modules/activity/domain"
)

// runtime owns the goroutines of one session: the position pump and the sync loop.
type runtime struct {
	ctx    context.Context
	cancel context.CancelFunc
	kick   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

func newRuntime(parent context.Context) *runtime {
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	return &runtime{ctx: ctx, cancel: cancel, kick: make(chan struct{}, 1)}
}

// stop cancels both goroutines and waits for them. It must not be called with mu held.
func (r *runtime) stop() {
	r.once.Do(func() {
		r.cancel()
		r.wg.Wait()
	})
}

func (r *runtime) poke() {
	select {
	case r.kick <- struct{}{}:
	default:
	}
}

func (r *runtime) goPump(c *Controller, samples <-chan domain.Sample) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for {
			select {
			case <-r.ctx.Done():
				return
			case sample, ok := <-samples:
				if !ok {
					c.log.Debug("position source closed")
					return
				}
				_ = c.Ingest(sample)
			}
		}
	}()
}

func (r *runtime) goSync(c *Controller) {
	ticker := c.opts.NewTicker(c.opts.FlushInterval)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-r.ctx.Done():
				return
			case <-ticker.C():
				c.tryFlush(r.ctx, false)
			case <-r.kick:
				c.tryFlush(r.ctx, true)
			}
		}
	}()
}

// FlushNow delivers every pending point, waiting for an in-flight flush first.
func (c *Controller) FlushNow(ctx context.Context) (int, error) {
	c.flushMu.Lock()
	defer c.flushMu.Unlock()
	return c.flushPending(ctx)
}

// tryFlush runs one scheduled flush unless another is in flight. Ticks only flush while
// Active; a kick also flushes a paused session.
func (c *Controller) tryFlush(ctx context.Context, kicked bool) {
	if !c.flushMu.TryLock() {
		c.log.Debug("flush skipped, previous flush in flight")
		return
	}
	defer c.flushMu.Unlock()

	c.mu.Lock()
	status := domain.StatusIdle
	if c.session != nil {
		status = c.session.Status
	}
	c.mu.Unlock()
	if status != domain.StatusActive && !(kicked && status == domain.StatusPaused) {
		return
	}
	_, _ = c.flushPending(ctx)
}

// flushPending sends the batch in chunks of at most MaxBatchPoints, oldest first. Success
// acknowledges exactly the chunk sent; failure keeps everything for the next attempt.
// Callers hold flushMu.
func (c *Controller) flushPending(ctx context.Context) (int, error) {
	sent := 0
	for {
		c.mu.Lock()
		session := c.session
		if session == nil || session.ID == "" || session.Status == domain.StatusCancelled {
			c.mu.Unlock()
			return sent, nil
		}
		chunk := c.batch.Peek(c.opts.MaxBatchPoints)
		id := session.ID
		c.mu.Unlock()
		if len(chunk) == 0 {
			return sent, nil
		}

		callCtx, cancel := context.WithTimeout(ctx, c.opts.BackendTimeout)
		err := c.backend.AddPointsBatch(callCtx, id, chunk)
		cancel()

		c.mu.Lock()
		if c.session != session || session.Status == domain.StatusCancelled {
			c.mu.Unlock()
			return sent, nil
		}
		if err != nil {
			c.flushFailures++
			c.lastFlushErr = err
			pending := c.batch.Len()
			c.mu.Unlock()
			c.log.Warn("flush failed", "session_id", id, "pending", pending, "error", err)
			return sent, fmt.Errorf("flush points: %w", err)
		}
		c.batch.Ack(len(chunk))
		c.lastFlushAt = c.clock.Now()
		c.lastFlushErr = nil
		c.mu.Unlock()
		sent += len(chunk)
		c.log.Debug("points flushed", "session_id", id, "count", len(chunk))
	}
}
