package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

type Job func(ctx context.Context) error

var (
	ErrPoolClosed = errors.New("working pool is closed")
	ErrQueueFull  = errors.New("working pool queue is full")
)

// WorkingPool runs submitted jobs on a fixed number of goroutines.
type WorkingPool struct {
	Name       string
	NumWorkers int
	jobChan    chan Job

	mu     sync.RWMutex
	closed bool
}

func NewWorkingPool(name string, numWorkers int, queueSize int) *WorkingPool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	return &WorkingPool{
		Name:       name,
		NumWorkers: numWorkers,
		jobChan:    make(chan Job, queueSize),
	}
}

// SubmitJob enqueues without blocking the caller.
func (p *WorkingPool) SubmitJob(job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.jobChan <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Start blocks until ctx is cancelled, then drains the queue and returns.
func (p *WorkingPool) Start(ctx context.Context, managerWg *sync.WaitGroup) {
	defer managerWg.Done()

	var workerWg sync.WaitGroup
	for i := range p.NumWorkers {
		workerWg.Add(1)
		go p.worker(&workerWg, i+1)
	}

	<-ctx.Done()

	slog.Info("shutdown signaled, closing job channel", "pool", p.Name)
	p.mu.Lock()
	p.closed = true
	close(p.jobChan)
	p.mu.Unlock()

	workerWg.Wait()
	slog.Info("all workers stopped", "pool", p.Name)
}

// worker keeps running queued jobs until the channel is closed, so events
// accepted before shutdown are still delivered.
func (p *WorkingPool) worker(wg *sync.WaitGroup, id int) {
	defer wg.Done()

	for job := range p.jobChan {
		p.safeExecution(job, id)
	}
}

func (p *WorkingPool) safeExecution(job Job, workerID int) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic recovered in job", "pool", p.Name, "worker", workerID, "panic", r)
		}
	}()

	if err := job(context.Background()); err != nil {
		slog.Error("error executing job", "pool", p.Name, "worker", workerID, "error", err)
	}
}
