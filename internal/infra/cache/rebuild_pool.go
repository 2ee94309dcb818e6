package cache

import (
	"log/slog"
	"sync"

	"flashsale-starter/internal/pkg/errs"
)

// ErrRebuildQueueFull means the pool is saturated. Submissions fail
// loudly instead of queueing unboundedly; the stale entry stays served
// and the next expiry window retries.
var ErrRebuildQueueFull = errs.New("cache: rebuild queue is full")

var ErrPoolClosed = errs.New("cache: rebuild pool is closed")

// RebuildPool runs cache rebuilds on a fixed set of workers shared
// across all hot keys.
type RebuildPool struct {
	tasks chan func()
	wg    sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

func NewRebuildPool(workers, queueSize int, logger *slog.Logger) *RebuildPool {
	if workers <= 0 {
		workers = 1
	}
	p := &RebuildPool{
		tasks: make(chan func(), queueSize),
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer p.wg.Done()
			for task := range p.tasks {
				runTask(task, logger)
			}
		}()
	}
	return p
}

func runTask(task func(), logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("recovered from panic in cache rebuild", "panic", r)
		}
	}()
	task()
}

func (p *RebuildPool) Submit(task func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.tasks <- task:
		return nil
	default:
		return ErrRebuildQueueFull
	}
}

// Close stops accepting tasks and waits for in-flight rebuilds.
func (p *RebuildPool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()
	p.wg.Wait()
}
