// Package worker runs sync tasks on a bounded goroutine pool.
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/rs/zerolog/log"
)

const (
	idleExpiry      = 30 * time.Second
	shutdownTimeout = 30 * time.Second
)

// ErrSizeInvalid is returned for a pool size below one.
var ErrSizeInvalid = errors.New("worker pool size must be at least 1")

// Task is a unit of work. It receives the context it was submitted with.
type Task func(ctx context.Context)

// Pool wraps ants.Pool with context aware submission.
type Pool struct {
	pool *ants.Pool
	name string
}

// New creates a blocking pool of size workers.
func New(name string, size int) (*Pool, error) {
	if size < 1 {
		return nil, ErrSizeInvalid
	}

	panicHandler := func(p any) {
		log.Error().
			Str("pool", name).
			Interface("panic", p).
			Stack().
			Msg("worker panic recovered")
	}

	p, err := ants.NewPool(size,
		ants.WithPanicHandler(panicHandler),
		ants.WithNonblocking(false),
		ants.WithExpiryDuration(idleExpiry),
	)
	if err != nil {
		return nil, err
	}

	return &Pool{pool: p, name: name}, nil
}

// Submit queues task. A context cancelled before or while queued skips the task.
// Submit blocks while every worker is busy.
func (p *Pool) Submit(ctx context.Context, task Task) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	return p.pool.Submit(func() {
		select {
		case <-ctx.Done():
			log.Debug().Str("pool", p.name).Err(ctx.Err()).Msg("task skipped: context cancelled")
			return
		default:
		}

		task(ctx)
	})
}

// Cap returns the pool size.
func (p *Pool) Cap() int {
	return p.pool.Cap()
}

// Running returns the number of busy workers.
func (p *Pool) Running() int {
	return p.pool.Running()
}

// Release waits for running tasks, bounded by a timeout, and closes the pool.
func (p *Pool) Release() {
	if err := p.pool.ReleaseTimeout(shutdownTimeout); err != nil {
		log.Warn().Str("pool", p.name).Err(err).Msg("worker pool shutdown timeout")
	}
}
