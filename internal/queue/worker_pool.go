package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/cryptocrystian/pravado/internal/models"
)

// CompletionFunc observes the outcome of each attempt. willRetry reports
// whether the queue accepted a retry request for a failed attempt. It is not
// invoked for canceled jobs - cancellation suppresses dependent dispatch.
type CompletionFunc func(job *models.Job, result *models.JobResult, willRetry bool)

// WorkerPool maintains a fixed set of reusable worker slots and keeps them
// supplied with ready jobs. Selection and assignment happen inside one
// synchronous poll tick, so two workers never race for the same job.
type WorkerPool struct {
	queue  *Queue
	logger arbor.ILogger

	mu           sync.Mutex
	cancel       context.CancelFunc
	workers      []*models.Worker
	completionFn CompletionFunc
	running      bool
	wg           sync.WaitGroup
}

// NewWorkerPool creates a worker pool over the given queue
func NewWorkerPool(q *Queue, logger arbor.ILogger) *WorkerPool {
	return &WorkerPool{
		queue:  q,
		logger: logger,
	}
}

// SetCompletionFunc registers the completion observer. Call before Start.
func (p *WorkerPool) SetCompletionFunc(fn CompletionFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.completionFn = fn
}

// Start initializes the worker slots and begins polling. A stopped pool can
// be started again; each Start runs under a fresh context.
func (p *WorkerPool) Start() error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("worker pool already running")
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	concurrency := p.queue.Config().Concurrency
	p.workers = make([]*models.Worker, concurrency)
	for i := 0; i < concurrency; i++ {
		p.workers[i] = &models.Worker{
			ID:     fmt.Sprintf("worker-%d", i+1),
			Status: models.WorkerStatusIdle,
		}
	}
	p.running = true
	p.mu.Unlock()

	p.logger.Info().
		Int("concurrency", concurrency).
		Dur("poll_interval", p.queue.Config().PollInterval).
		Msg("Starting worker pool")

	go p.pollLoop(ctx)
	go p.cleanupLoop(ctx)

	return nil
}

// Stop halts polling and waits for all in-flight jobs to finish, so no
// execution is abandoned mid-flight on shutdown
func (p *WorkerPool) Stop() error {
	p.logger.Info().Msg("Stopping worker pool")

	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	p.wg.Wait()

	p.mu.Lock()
	for _, w := range p.workers {
		w.Status = models.WorkerStatusStopped
	}
	p.running = false
	p.mu.Unlock()

	p.logger.Info().Msg("Worker pool stopped")
	return nil
}

// pollLoop scans for idle workers on a fixed interval
func (p *WorkerPool) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(p.queue.Config().PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.assignReady(ctx)
		}
	}
}

// cleanupLoop purges old terminal jobs on a fixed interval
func (p *WorkerPool) cleanupLoop(ctx context.Context) {
	interval := p.queue.Config().CleanupInterval
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.queue.Cleanup(p.queue.Config().CleanupMaxAge)
		}
	}
}

// assignReady hands ready jobs to idle workers. The scan stops as soon as
// the queue reports no ready job.
func (p *WorkerPool) assignReady(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, w := range p.workers {
		if w.Status != models.WorkerStatusIdle {
			continue
		}
		job := p.queue.NextJob()
		if job == nil {
			return
		}
		w.Status = models.WorkerStatusBusy
		w.CurrentJobID = job.ID
		p.wg.Add(1)
		go p.runJob(ctx, w, job)
	}
}

// runJob executes one attempt and handles the retry decision: the worker
// requests a retry on failure, the queue decides whether it is permitted.
// The worker only ever reads the snapshots the queue hands back under its
// lock, never the shared Job, so a retried job picked up by another worker
// cannot race with this one.
func (p *WorkerPool) runJob(ctx context.Context, w *models.Worker, job *models.Job) {
	defer p.wg.Done()

	result, snapshot := p.queue.ExecuteJob(ctx, job, w.ID)

	willRetry := false
	if !result.Success && snapshot.Status == models.JobStatusFailed {
		if retried, ok := p.queue.RetryJob(snapshot.ID); ok {
			willRetry = true
			snapshot = retried
		}
	}

	p.mu.Lock()
	fn := p.completionFn
	p.mu.Unlock()

	if fn != nil && snapshot.Status != models.JobStatusCanceled {
		fn(&snapshot, result, willRetry)
	}

	now := time.Now()
	p.mu.Lock()
	w.Status = models.WorkerStatusIdle
	w.CurrentJobID = ""
	w.ProcessedCount++
	w.LastCompletedAt = &now
	p.mu.Unlock()
}

// Workers returns a snapshot of the worker slots
func (p *WorkerPool) Workers() []models.Worker {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]models.Worker, len(p.workers))
	for i, w := range p.workers {
		out[i] = *w
	}
	return out
}
