// -----------------------------------------------------------------------
// Execution Dispatcher - translates playbook structure into queue operations
// -----------------------------------------------------------------------

package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/cryptocrystian/pravado/internal/interfaces"
	"github.com/cryptocrystian/pravado/internal/models"
	"github.com/cryptocrystian/pravado/internal/queue"
)

// StepExecutor runs the business logic for one step type. Executors are
// registered at composition time; the dispatcher routes each job to the
// executor matching its step type.
type StepExecutor interface {
	StepType() string
	Execute(ctx context.Context, exec *queue.Execution) (map[string]interface{}, error)
}

// Dispatcher converts a run's step graph into jobs, seeds the queue with
// initially-runnable steps, and unblocks dependents as predecessors
// complete. Store I/O failures propagate to the caller - they indicate
// misuse (dispatching a nonexistent run), not a transient condition.
type Dispatcher struct {
	queue   *queue.Queue
	storage interfaces.StorageManager
	events  interfaces.EventService
	logger  arbor.ILogger

	mu        sync.RWMutex
	executors map[string]StepExecutor
}

// New creates a dispatcher over the given queue, store, and event bus
func New(q *queue.Queue, storage interfaces.StorageManager, events interfaces.EventService, logger arbor.ILogger) *Dispatcher {
	return &Dispatcher{
		queue:     q,
		storage:   storage,
		events:    events,
		logger:    logger,
		executors: make(map[string]StepExecutor),
	}
}

// RegisterExecutor registers the executor for its step type, replacing any
// existing registration
func (d *Dispatcher) RegisterExecutor(executor StepExecutor) {
	if executor == nil {
		return
	}
	d.mu.Lock()
	d.executors[executor.StepType()] = executor
	d.mu.Unlock()

	d.logger.Debug().Str("step_type", executor.StepType()).Msg("Step executor registered")
}

// JobHandler returns the queue handler that executes playbook-step jobs.
// Register it on the queue for models.JobTypePlaybookStep.
func (d *Dispatcher) JobHandler() queue.JobHandler {
	return func(ctx context.Context, exec *queue.Execution) (*models.JobResult, error) {
		payload := exec.Job.Payload

		d.mu.RLock()
		executor, exists := d.executors[payload.StepType]
		d.mu.RUnlock()
		if !exists {
			// Configuration error, never retried
			msg := fmt.Sprintf("no executor registered for step type: %s", payload.StepType)
			exec.Log.Error(msg)
			return models.NewFailureResult(models.NewConfigError(msg)), nil
		}

		if err := d.storage.RunStorage().UpdateStepRunState(ctx, payload.StepRunID, models.StepRunStateRunning, ""); err != nil {
			d.logger.Warn().Err(err).Str("step_run_id", payload.StepRunID).Msg("Failed to mark step-run running")
		}
		d.events.Publish(models.NewRunEvent(models.EventStepUpdated, payload.RunID, payload.StepKey, map[string]interface{}{
			"state":   string(models.StepRunStateRunning),
			"attempt": exec.Job.Attempt + 1,
		}))

		exec.Log.Infof("Executing step %s (type=%s)", payload.StepKey, payload.StepType)

		output, err := executor.Execute(ctx, exec)
		if err != nil {
			return nil, err
		}
		return models.NewSuccessResult(output), nil
	}
}

// DispatchPlaybookRun loads the run's step graph and enqueues every step
// with no unmet dependency. Steps with unmet dependencies stay in
// waiting_for_dependencies until a later dispatch pass finds them eligible.
func (d *Dispatcher) DispatchPlaybookRun(ctx context.Context, runID string) error {
	run, err := d.storage.RunStorage().GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("load run: %w", err)
	}
	if run.State.IsTerminal() {
		return fmt.Errorf("run %s is already %s", runID, run.State)
	}

	steps, err := d.storage.PlaybookStorage().ListSteps(ctx, run.PlaybookID)
	if err != nil {
		return fmt.Errorf("load steps for playbook %s: %w", run.PlaybookID, err)
	}
	if len(steps) == 0 {
		return fmt.Errorf("playbook %s has no steps", run.PlaybookID)
	}

	stepRuns, err := d.storage.RunStorage().ListStepRuns(ctx, runID)
	if err != nil {
		return fmt.Errorf("load step-runs: %w", err)
	}
	runsByKey := stepRunsByKey(stepRuns)

	if err := d.storage.RunStorage().UpdateRunState(ctx, runID, models.RunStateRunning, nil); err != nil {
		return fmt.Errorf("mark run running: %w", err)
	}
	d.events.Publish(models.NewRunEvent(models.EventRunUpdated, runID, "", map[string]interface{}{
		"state": string(models.RunStateRunning),
	}))

	graph := BuildDependencyGraph(steps)

	dispatched := 0
	for _, step := range steps {
		if len(graph[step.Key]) > 0 {
			continue
		}
		stepRun := runsByKey[step.Key]
		if stepRun == nil {
			return fmt.Errorf("step-run not found for step %s in run %s", step.Key, runID)
		}
		if stepRun.State != models.StepRunStateWaiting {
			continue
		}
		if err := d.DispatchStepRun(ctx, run, step, stepRun, nil); err != nil {
			return err
		}
		dispatched++
	}

	d.logger.Info().
		Str("run_id", runID).
		Int("steps", len(steps)).
		Int("dispatched", dispatched).
		Msg("Playbook run dispatched")

	return nil
}

// DispatchStepRun constructs the job for one step-run and enqueues it. This
// is the only place a job is created from playbook data.
func (d *Dispatcher) DispatchStepRun(ctx context.Context, run *models.PlaybookRun, step models.Step, stepRun *models.StepRun, previousOutputs map[string]map[string]interface{}) error {
	if previousOutputs == nil {
		previousOutputs = make(map[string]map[string]interface{})
	}

	job := models.NewJob(models.JobTypePlaybookStep, run.Priority, d.queue.Config().MaxAttempts, models.JobPayload{
		RunID:           run.ID,
		StepRunID:       stepRun.ID,
		StepID:          step.ID,
		StepKey:         step.Key,
		StepType:        step.Type,
		PlaybookID:      run.PlaybookID,
		OrgID:           run.OrgID,
		Input:           stepRun.Input,
		PreviousOutputs: previousOutputs,
	})

	if err := d.queue.Enqueue(job); err != nil {
		return fmt.Errorf("enqueue step %s: %w", step.Key, err)
	}

	if err := d.storage.RunStorage().UpdateStepRunState(ctx, stepRun.ID, models.StepRunStateQueued, ""); err != nil {
		return fmt.Errorf("mark step-run queued: %w", err)
	}
	d.events.Publish(models.NewRunEvent(models.EventStepUpdated, run.ID, step.Key, map[string]interface{}{
		"state":  string(models.StepRunStateQueued),
		"job_id": job.ID,
	}))

	return nil
}

// DispatchDependentSteps runs after a step succeeds: it recomputes the
// dependency graph and enqueues each waiting dependent whose declared
// dependencies have all succeeded. A dependency whose step-run cannot be
// found counts as unsatisfied - dependents wait rather than crash the pass.
//
// The graph is recomputed from the store on every completion; fine at
// small step counts, O(steps) rework per completion on very large playbooks.
func (d *Dispatcher) DispatchDependentSteps(ctx context.Context, runID, completedStepKey string, output map[string]interface{}) error {
	run, err := d.storage.RunStorage().GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("load run: %w", err)
	}
	if run.State == models.RunStateCanceled {
		return nil
	}

	steps, err := d.storage.PlaybookStorage().ListSteps(ctx, run.PlaybookID)
	if err != nil {
		return fmt.Errorf("load steps for playbook %s: %w", run.PlaybookID, err)
	}
	stepRuns, err := d.storage.RunStorage().ListStepRuns(ctx, runID)
	if err != nil {
		return fmt.Errorf("load step-runs: %w", err)
	}
	runsByKey := stepRunsByKey(stepRuns)

	// Accumulated outputs of every succeeded step, keyed by step key,
	// plus the newly completed one.
	outputs := make(map[string]map[string]interface{})
	for _, sr := range stepRuns {
		if sr.State == models.StepRunStateSucceeded {
			outputs[sr.StepKey] = sr.Output
		}
	}
	outputs[completedStepKey] = output

	graph := BuildDependencyGraph(steps)

	for _, step := range steps {
		deps := graph[step.Key]
		if !dependsOn(deps, completedStepKey) {
			continue
		}
		stepRun := runsByKey[step.Key]
		if stepRun == nil || stepRun.State != models.StepRunStateWaiting {
			continue
		}
		if !d.dependenciesSatisfied(deps, completedStepKey, runsByKey) {
			continue
		}
		if err := d.DispatchStepRun(ctx, run, step, stepRun, outputs); err != nil {
			return err
		}
	}

	return nil
}

// dependenciesSatisfied reports whether every dependency's step-run has
// reached the success state
func (d *Dispatcher) dependenciesSatisfied(deps []string, completedStepKey string, runsByKey map[string]*models.StepRun) bool {
	for _, dep := range deps {
		if dep == completedStepKey {
			continue
		}
		depRun := runsByKey[dep]
		if depRun == nil || depRun.State != models.StepRunStateSucceeded {
			return false
		}
	}
	return true
}

// CancelPlaybookRun cancels every active step-run's job and marks the run
// canceled. Best-effort for already-running jobs: cancellation is
// cooperative, the in-flight handler is not preempted.
func (d *Dispatcher) CancelPlaybookRun(ctx context.Context, runID string) error {
	run, err := d.storage.RunStorage().GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("load run: %w", err)
	}
	if run.State.IsTerminal() {
		return fmt.Errorf("run %s is already %s", runID, run.State)
	}

	stepRuns, err := d.storage.RunStorage().ListStepRuns(ctx, runID)
	if err != nil {
		return fmt.Errorf("load step-runs: %w", err)
	}

	canceled := d.queue.CancelJobsForRun(runID)

	for _, sr := range stepRuns {
		if !sr.State.IsActive() {
			continue
		}
		if err := d.storage.RunStorage().UpdateStepRunState(ctx, sr.ID, models.StepRunStateCanceled, ""); err != nil {
			return fmt.Errorf("mark step-run %s canceled: %w", sr.ID, err)
		}
		d.events.Publish(models.NewRunEvent(models.EventStepUpdated, runID, sr.StepKey, map[string]interface{}{
			"state": string(models.StepRunStateCanceled),
		}))
	}

	now := time.Now()
	if err := d.storage.RunStorage().UpdateRunState(ctx, runID, models.RunStateCanceled, &now); err != nil {
		return fmt.Errorf("mark run canceled: %w", err)
	}
	d.events.Publish(models.NewRunEvent(models.EventRunUpdated, runID, "", map[string]interface{}{
		"state": string(models.RunStateCanceled),
	}))

	d.logger.Info().
		Str("run_id", runID).
		Int("canceled_jobs", len(canceled)).
		Msg("Playbook run canceled")

	return nil
}

// HandleJobCompletion observes each attempt's outcome; wire it to the
// worker pool's completion callback. On success it persists the output,
// unblocks dependents, and completes the run once every step has succeeded.
// On terminal failure the step-run and run are failed. While a retry is
// pending only a step.updated event goes out.
func (d *Dispatcher) HandleJobCompletion(job *models.Job, result *models.JobResult, willRetry bool) {
	ctx := context.Background()
	payload := job.Payload

	stepRun, err := d.storage.RunStorage().GetStepRun(ctx, payload.StepRunID)
	if err != nil {
		d.logger.Warn().Err(err).Str("step_run_id", payload.StepRunID).Msg("Completed job references unknown step-run")
		return
	}
	run, err := d.storage.RunStorage().GetRun(ctx, payload.RunID)
	if err != nil {
		d.logger.Warn().Err(err).Str("run_id", payload.RunID).Msg("Completed job references unknown run")
		return
	}
	// Canceled runs record results but never retry or dispatch dependents
	if run.State == models.RunStateCanceled || stepRun.State == models.StepRunStateCanceled {
		return
	}

	if len(result.Logs) > 0 {
		d.events.Publish(models.NewRunEvent(models.EventStepLogAppended, payload.RunID, payload.StepKey, map[string]interface{}{
			"logs": result.Logs,
		}))
	}

	switch {
	case result.Success:
		d.handleStepSuccess(ctx, payload, result)

	case willRetry:
		d.events.Publish(models.NewRunEvent(models.EventStepUpdated, payload.RunID, payload.StepKey, map[string]interface{}{
			"state":   string(models.StepRunStateQueued),
			"retry":   true,
			"attempt": job.Attempt,
			"error":   errorMessage(result),
		}))

	default:
		d.handleStepFailure(ctx, payload, result)
	}
}

func (d *Dispatcher) handleStepSuccess(ctx context.Context, payload models.JobPayload, result *models.JobResult) {
	if err := d.storage.RunStorage().SetStepRunOutput(ctx, payload.StepRunID, result.Output); err != nil {
		d.logger.Error().Err(err).Str("step_run_id", payload.StepRunID).Msg("Failed to persist step output")
	}
	if err := d.storage.RunStorage().UpdateStepRunState(ctx, payload.StepRunID, models.StepRunStateSucceeded, ""); err != nil {
		d.logger.Error().Err(err).Str("step_run_id", payload.StepRunID).Msg("Failed to mark step-run succeeded")
	}

	d.events.Publish(models.NewRunEvent(models.EventStepCompleted, payload.RunID, payload.StepKey, map[string]interface{}{
		"output": result.Output,
	}))

	if err := d.DispatchDependentSteps(ctx, payload.RunID, payload.StepKey, result.Output); err != nil {
		d.logger.Error().Err(err).Str("run_id", payload.RunID).Msg("Failed to dispatch dependent steps")
	}

	d.maybeCompleteRun(ctx, payload.RunID)
}

func (d *Dispatcher) handleStepFailure(ctx context.Context, payload models.JobPayload, result *models.JobResult) {
	errMsg := errorMessage(result)

	if err := d.storage.RunStorage().UpdateStepRunState(ctx, payload.StepRunID, models.StepRunStateFailed, errMsg); err != nil {
		d.logger.Error().Err(err).Str("step_run_id", payload.StepRunID).Msg("Failed to mark step-run failed")
	}
	d.events.Publish(models.NewRunEvent(models.EventStepFailed, payload.RunID, payload.StepKey, map[string]interface{}{
		"error": errMsg,
	}))

	now := time.Now()
	if err := d.storage.RunStorage().UpdateRunState(ctx, payload.RunID, models.RunStateFailed, &now); err != nil {
		d.logger.Error().Err(err).Str("run_id", payload.RunID).Msg("Failed to mark run failed")
	}
	// Partial progress stays in the store for diagnosis
	d.events.Publish(models.NewRunEvent(models.EventRunFailed, payload.RunID, "", map[string]interface{}{
		"step_key": payload.StepKey,
		"error":    errMsg,
	}))
}

// maybeCompleteRun completes the run once every step-run has succeeded
func (d *Dispatcher) maybeCompleteRun(ctx context.Context, runID string) {
	stepRuns, err := d.storage.RunStorage().ListStepRuns(ctx, runID)
	if err != nil {
		d.logger.Error().Err(err).Str("run_id", runID).Msg("Failed to load step-runs for completion check")
		return
	}
	for _, sr := range stepRuns {
		if sr.State != models.StepRunStateSucceeded {
			return
		}
	}

	now := time.Now()
	if err := d.storage.RunStorage().UpdateRunState(ctx, runID, models.RunStateCompleted, &now); err != nil {
		d.logger.Error().Err(err).Str("run_id", runID).Msg("Failed to mark run completed")
		return
	}
	d.events.Publish(models.NewRunEvent(models.EventRunCompleted, runID, "", nil))

	d.logger.Info().Str("run_id", runID).Msg("Playbook run completed")
}

func stepRunsByKey(stepRuns []*models.StepRun) map[string]*models.StepRun {
	byKey := make(map[string]*models.StepRun, len(stepRuns))
	for _, sr := range stepRuns {
		byKey[sr.StepKey] = sr
	}
	return byKey
}

func errorMessage(result *models.JobResult) string {
	if result.Error != nil {
		return result.Error.Message
	}
	return "step execution failed"
}
