package worker

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Task is a function that represents a background job
type Task func(ctx context.Context) error

// Pool runs queued tasks on a fixed set of workers. Warmup rebuilds
// land here so request handlers never block on them.
type Pool struct {
	taskQueue chan Task
	wg        sync.WaitGroup
	isClosing atomic.Bool
	log       zerolog.Logger
}

// NewPool starts size workers over a queue of queueSize pending tasks
func NewPool(size, queueSize int, log zerolog.Logger) *Pool {
	if size < 1 {
		size = 1
	}
	if queueSize < 1 {
		queueSize = 100
	}
	p := &Pool{
		taskQueue: make(chan Task, queueSize),
		log:       log.With().Str("component", "worker").Logger(),
	}

	for i := 0; i < size; i++ {
		p.wg.Add(1)
		go p.startWorker()
	}

	return p
}

func (p *Pool) startWorker() {
	defer p.wg.Done()
	for task := range p.taskQueue {
		if err := task(context.Background()); err != nil {
			p.log.Error().Err(err).Msg("worker task failed")
		}
	}
}

// Submit queues a task; tasks submitted during shutdown or against a
// full queue are dropped with a warning
func (p *Pool) Submit(t Task) {
	if p.isClosing.Load() {
		p.log.Warn().Msg("task submitted during shutdown, dropping")
		return
	}
	select {
	case p.taskQueue <- t:
	default:
		p.log.Warn().Msg("task queue full, dropping task")
	}
}

// Shutdown closes the queue and waits for workers to finish
func (p *Pool) Shutdown() {
	p.isClosing.Store(true)
	close(p.taskQueue)
	p.wg.Wait()
}
