package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/cryptocrystian/pravado/internal/models"
)

// completionRecorder collects completion callbacks for assertions
type completionRecorder struct {
	mu    sync.Mutex
	calls []completionCall
	done  chan struct{}
	want  int
}

type completionCall struct {
	jobID     string
	success   bool
	willRetry bool
}

func newCompletionRecorder(want int) *completionRecorder {
	return &completionRecorder{done: make(chan struct{}), want: want}
}

func (r *completionRecorder) record(job *models.Job, result *models.JobResult, willRetry bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, completionCall{
		jobID:     job.ID,
		success:   result.Success,
		willRetry: willRetry,
	})
	if len(r.calls) == r.want {
		close(r.done)
	}
}

func (r *completionRecorder) wait(t *testing.T) []completionCall {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for completions")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]completionCall, len(r.calls))
	copy(out, r.calls)
	return out
}

func TestWorkerPool_ExecutesJobs(t *testing.T) {
	cfg := testConfig()
	cfg.Concurrency = 2
	q := NewQueue(cfg, arbor.NewLogger())

	q.RegisterHandler(models.JobTypePlaybookStep, func(ctx context.Context, exec *Execution) (*models.JobResult, error) {
		return models.NewSuccessResult(nil), nil
	})

	recorder := newCompletionRecorder(3)
	pool := NewWorkerPool(q, arbor.NewLogger())
	pool.SetCompletionFunc(recorder.record)

	for _, key := range []string{"a", "b", "c"} {
		if err := q.Enqueue(newTestJob(models.JobPriorityMedium, key)); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}

	if err := pool.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer pool.Stop()

	calls := recorder.wait(t)
	for _, call := range calls {
		if !call.success {
			t.Errorf("expected success for job %s", call.jobID)
		}
		if call.willRetry {
			t.Errorf("successful job %s must not report willRetry", call.jobID)
		}
	}
}

func TestWorkerPool_RetryUntilExhausted(t *testing.T) {
	cfg := testConfig()
	cfg.Concurrency = 1
	q := NewQueue(cfg, arbor.NewLogger())

	q.RegisterHandler(models.JobTypePlaybookStep, func(ctx context.Context, exec *Execution) (*models.JobResult, error) {
		return nil, errors.New("always fails")
	})

	job := newTestJob(models.JobPriorityMedium, "a")
	job.MaxAttempts = 1
	if err := q.Enqueue(job); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	// Initial attempt plus one retry: two completions total
	recorder := newCompletionRecorder(2)
	pool := NewWorkerPool(q, arbor.NewLogger())
	pool.SetCompletionFunc(recorder.record)

	if err := pool.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer pool.Stop()

	calls := recorder.wait(t)
	if !calls[0].willRetry {
		t.Error("first failure should have been granted a retry")
	}
	if calls[1].willRetry {
		t.Error("retry budget exhausted, second failure must not retry")
	}

	stored, exists := q.GetJob(job.ID)
	if !exists || stored.Status != models.JobStatusFailed {
		t.Errorf("expected job to end failed, got %+v", stored)
	}
}

func TestWorkerPool_CanceledJobSkipsCompletion(t *testing.T) {
	cfg := testConfig()
	cfg.Concurrency = 1
	q := NewQueue(cfg, arbor.NewLogger())

	started := make(chan struct{})
	q.RegisterHandler(models.JobTypePlaybookStep, func(ctx context.Context, exec *Execution) (*models.JobResult, error) {
		close(started)
		<-ctx.Done()
		return models.NewSuccessResult(nil), nil
	})

	var mu sync.Mutex
	completions := 0
	pool := NewWorkerPool(q, arbor.NewLogger())
	pool.SetCompletionFunc(func(job *models.Job, result *models.JobResult, willRetry bool) {
		mu.Lock()
		completions++
		mu.Unlock()
	})

	job := newTestJob(models.JobPriorityMedium, "a")
	if err := q.Enqueue(job); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	if err := pool.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	<-started
	if err := q.CancelJob(job.ID); err != nil {
		t.Fatalf("CancelJob failed: %v", err)
	}

	// Stop drains the in-flight job before returning
	if err := pool.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	mu.Lock()
	got := completions
	mu.Unlock()
	if got != 0 {
		t.Errorf("completion callback must be skipped for canceled jobs, got %d calls", got)
	}
	if job.Status != models.JobStatusCanceled {
		t.Errorf("expected canceled status, got %s", job.Status)
	}
}

func TestWorkerPool_ConcurrentRetriesUseSnapshots(t *testing.T) {
	cfg := testConfig()
	cfg.Concurrency = 8
	cfg.RetryBaseDelay = 0 // retried jobs are immediately ready for another worker
	q := NewQueue(cfg, arbor.NewLogger())

	q.RegisterHandler(models.JobTypePlaybookStep, func(ctx context.Context, exec *Execution) (*models.JobResult, error) {
		return nil, errors.New("always fails")
	})

	const jobs = 10
	keys := make([]string, jobs)
	ids := make([]string, jobs)
	for i := range keys {
		keys[i] = string(rune('a' + i))
		job := newTestJob(models.JobPriorityMedium, keys[i])
		job.MaxAttempts = 2
		ids[i] = job.ID
		if err := q.Enqueue(job); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}

	// Each job runs 3 times: the initial attempt plus two retries. With zero
	// backoff a retried job is picked up by another worker while the first
	// worker is still reporting its completion.
	recorder := newCompletionRecorder(jobs * 3)
	pool := NewWorkerPool(q, arbor.NewLogger())
	pool.SetCompletionFunc(recorder.record)

	if err := pool.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer pool.Stop()

	calls := recorder.wait(t)
	perJob := make(map[string]int)
	for _, call := range calls {
		perJob[call.jobID]++
	}
	for _, id := range ids {
		if perJob[id] != 3 {
			t.Errorf("job %s: expected 3 completions, got %d", id, perJob[id])
		}
		stored, _ := q.GetJob(id)
		if stored.Status != models.JobStatusFailed || stored.Attempt != 2 {
			t.Errorf("job %s: expected terminal failure at attempt 2, got status=%s attempt=%d",
				id, stored.Status, stored.Attempt)
		}
	}
}

func TestWorkerPool_ConfigErrorNotRetried(t *testing.T) {
	cfg := testConfig()
	cfg.Concurrency = 1
	q := NewQueue(cfg, arbor.NewLogger())

	q.RegisterHandler(models.JobTypePlaybookStep, func(ctx context.Context, exec *Execution) (*models.JobResult, error) {
		return models.NewFailureResult(models.NewConfigError("executor missing")), nil
	})

	job := newTestJob(models.JobPriorityMedium, "a")
	if err := q.Enqueue(job); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	recorder := newCompletionRecorder(1)
	pool := NewWorkerPool(q, arbor.NewLogger())
	pool.SetCompletionFunc(recorder.record)

	if err := pool.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	calls := recorder.wait(t)
	if calls[0].willRetry {
		t.Error("configuration error must not be granted a retry")
	}

	// Give the pool a few more ticks: the job must stay terminal-failed
	// with no further attempts
	time.Sleep(50 * time.Millisecond)
	if err := pool.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	recorder.mu.Lock()
	total := len(recorder.calls)
	recorder.mu.Unlock()
	if total != 1 {
		t.Errorf("expected exactly 1 execution, got %d", total)
	}
	stored, _ := q.GetJob(job.ID)
	if stored.Status != models.JobStatusFailed || stored.Attempt != 0 {
		t.Errorf("expected terminal failure at attempt 0, got status=%s attempt=%d", stored.Status, stored.Attempt)
	}
}

func TestWorkerPool_RestartAfterStop(t *testing.T) {
	cfg := testConfig()
	cfg.Concurrency = 1
	q := NewQueue(cfg, arbor.NewLogger())
	q.RegisterHandler(models.JobTypePlaybookStep, func(ctx context.Context, exec *Execution) (*models.JobResult, error) {
		return models.NewSuccessResult(nil), nil
	})

	pool := NewWorkerPool(q, arbor.NewLogger())
	if err := pool.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := pool.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	// A restarted pool must poll again, not run under the canceled context
	recorder := newCompletionRecorder(1)
	pool.SetCompletionFunc(recorder.record)
	if err := pool.Start(); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	defer pool.Stop()

	if err := q.Enqueue(newTestJob(models.JobPriorityMedium, "a")); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	calls := recorder.wait(t)
	if !calls[0].success {
		t.Error("expected the restarted pool to execute the job")
	}
}

func TestWorkerPool_StopMarksWorkersStopped(t *testing.T) {
	cfg := testConfig()
	cfg.Concurrency = 3
	q := NewQueue(cfg, arbor.NewLogger())
	pool := NewWorkerPool(q, arbor.NewLogger())

	if err := pool.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := pool.Start(); err == nil {
		t.Error("second Start should fail while running")
	}

	workers := pool.Workers()
	if len(workers) != 3 {
		t.Fatalf("expected 3 workers, got %d", len(workers))
	}

	if err := pool.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	for _, w := range pool.Workers() {
		if w.Status != models.WorkerStatusStopped {
			t.Errorf("worker %s not stopped: %s", w.ID, w.Status)
		}
	}
}
