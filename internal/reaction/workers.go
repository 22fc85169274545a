package reaction

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ayane-dev/zombiewatch-go/internal/detector"
	"github.com/ayane-dev/zombiewatch-go/internal/errors"
	"github.com/ayane-dev/zombiewatch-go/internal/logging"
)

const (
	defaultQueueSize = 64
	defaultWorkers   = 2
)

// ErrQueueFull is returned when the action queue cannot accept more work.
var ErrQueueFull = fmt.Errorf("action queue full")

type job struct {
	action Action
	dc     *detector.Context
}

// Pool executes actions on a fixed set of worker goroutines with a bounded
// queue. A full queue rejects instead of blocking the dispatcher.
type Pool struct {
	jobs    chan job
	wg      sync.WaitGroup
	started bool
	mu      sync.Mutex
	log     *slog.Logger
}

// NewPool creates an action pool with the given queue capacity.
func NewPool(queueSize int) *Pool {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Pool{
		jobs: make(chan job, queueSize),
		log:  logging.ForService("reaction"),
	}
}

// Start launches the worker goroutines. Safe to call once.
func (p *Pool) Start(ctx context.Context, workers int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true

	if workers <= 0 {
		workers = defaultWorkers
	}
	for range workers {
		p.wg.Add(1)
		go p.worker(ctx)
	}
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-p.jobs:
			if !ok {
				return
			}
			if err := j.action.Execute(j.dc); err != nil {
				p.log.Error("action failed",
					"action", j.action.GetDescription(),
					"error", err)
			}
		}
	}
}

// Enqueue submits an action for execution.
func (p *Pool) Enqueue(action Action, dc *detector.Context) error {
	select {
	case p.jobs <- job{action: action, dc: dc}:
		return nil
	default:
		return errors.New(ErrQueueFull).
			Component("reaction").
			Category(errors.CategoryDispatch).
			Context("action", action.GetDescription()).
			Build()
	}
}

// Wait blocks until all workers have exited. Call after cancelling the
// context passed to Start.
func (p *Pool) Wait() {
	p.wg.Wait()
}
