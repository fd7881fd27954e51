package orchestration

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/finward/opsflow/internal/common"
	"github.com/finward/opsflow/internal/message"
	"github.com/finward/opsflow/internal/store"
	"github.com/finward/opsflow/internal/store/connector"
)

// TaskFunc executes one job. It returns the run's messages; a non-nil
// error marks the job failed regardless of the messages.
type TaskFunc func(ctx context.Context, params map[string]string) ([]message.Message, error)

// Runner executes runbooks against a registry of task handlers and
// records each job run in the store.
type Runner struct {
	tasks  map[string]TaskFunc
	store  *store.Store
	logger *common.Logger
}

// NewRunner builds a Runner. The store may be nil, in which case runs
// are not persisted.
func NewRunner(st *store.Store) *Runner {
	return &Runner{
		tasks:  make(map[string]TaskFunc),
		store:  st,
		logger: common.GetLogger().WithComponent("runner"),
	}
}

// Register binds a task name to its handler. Later registrations
// replace earlier ones.
func (r *Runner) Register(name string, fn TaskFunc) {
	r.tasks[name] = fn
}

// Run executes every job in the runbook in dependency order and
// returns one result per job, in execution order.
func (r *Runner) Run(ctx context.Context, runbook *Runbook) ([]JobResult, error) {
	return r.run(ctx, runbook, runbook.Jobs)
}

// RunJob executes one named job together with its transitive
// dependencies.
func (r *Runner) RunJob(ctx context.Context, runbook *Runbook, name string) ([]JobResult, error) {
	byName := make(map[string]Job, len(runbook.Jobs))
	for _, job := range runbook.Jobs {
		byName[job.Name] = job
	}
	if _, ok := byName[name]; !ok {
		return nil, fmt.Errorf("job %s not found in runbook", name)
	}

	needed := make(map[string]bool)
	var mark func(n string)
	mark = func(n string) {
		if needed[n] {
			return
		}
		needed[n] = true
		for _, dep := range byName[n].DependsOn {
			mark(dep)
		}
	}
	mark(name)

	var jobs []Job
	for _, job := range runbook.Jobs {
		if needed[job.Name] {
			jobs = append(jobs, job)
		}
	}
	return r.run(ctx, runbook, jobs)
}

func (r *Runner) run(ctx context.Context, runbook *Runbook, jobs []Job) ([]JobResult, error) {
	if err := validateRunbook(runbook); err != nil {
		return nil, err
	}
	for _, job := range jobs {
		if _, ok := r.tasks[job.Task]; !ok {
			return nil, fmt.Errorf("job %s: no handler registered for task %s", job.Name, job.Task)
		}
	}

	jobs = sortByDependency(jobs)

	outcome := make(map[string]*JobResult, len(jobs))
	results := make([]JobResult, 0, len(jobs))
	stopped := false

	for i, job := range jobs {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		if stopped {
			break
		}
		if i > 0 && runbook.Global.WaitBetweenJobs > 0 {
			select {
			case <-ctx.Done():
				return results, ctx.Err()
			case <-time.After(runbook.Global.WaitBetweenJobs):
			}
		}

		if reason := r.skipReason(job, outcome); reason != "" {
			res := JobResult{Name: job.Name, Skipped: true, Error: reason}
			outcome[job.Name] = &res
			results = append(results, res)
			r.logger.WithJob(job.Name).Warn("job skipped", "reason", reason)
			continue
		}

		res := r.runOne(ctx, runbook, job)
		outcome[job.Name] = &res
		results = append(results, res)

		if !res.Success && policy(job) == OnFailureStop {
			stopped = true
			r.logger.WithJob(job.Name).Error("job failed, stopping runbook", "error", res.Error)
		}
	}
	return results, nil
}

// sortByDependency orders jobs so every dependency precedes its
// dependents, keeping declaration order among unrelated jobs. The
// loader has already rejected cycles.
func sortByDependency(jobs []Job) []Job {
	byName := make(map[string]Job, len(jobs))
	for _, job := range jobs {
		byName[job.Name] = job
	}

	ordered := make([]Job, 0, len(jobs))
	placed := make(map[string]bool, len(jobs))
	var place func(job Job)
	place = func(job Job) {
		if placed[job.Name] {
			return
		}
		placed[job.Name] = true
		for _, dep := range job.DependsOn {
			if depJob, ok := byName[dep]; ok {
				place(depJob)
			}
		}
		ordered = append(ordered, job)
	}
	for _, job := range jobs {
		place(job)
	}
	return ordered
}

// skipReason reports why a job cannot run, or "" when it can. A job is
// skipped when a dependency was skipped or failed under a policy that
// withholds dependents.
func (r *Runner) skipReason(job Job, outcome map[string]*JobResult) string {
	for _, dep := range job.DependsOn {
		prev, ok := outcome[dep]
		if !ok {
			return fmt.Sprintf("dependency %s did not run", dep)
		}
		if prev.Skipped {
			return fmt.Sprintf("dependency %s was skipped", dep)
		}
		if !prev.Success && prev.failurePolicy != OnFailureContinue {
			return fmt.Sprintf("dependency %s failed", dep)
		}
	}
	return ""
}

func policy(job Job) string {
	if job.OnFailure == "" {
		return OnFailureStop
	}
	return job.OnFailure
}

func (r *Runner) runOne(ctx context.Context, runbook *Runbook, job Job) JobResult {
	res := JobResult{Name: job.Name, StartTime: time.Now(), failurePolicy: policy(job)}
	logger := r.logger.WithJob(job.Name)

	runID := 0
	if r.store != nil {
		id, err := r.store.BeginRun(ctx, job.Name)
		if err != nil {
			logger.Warn("could not record run start", "error", err)
		} else {
			runID = id
		}
	}

	jobCtx := ctx
	if job.Timeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, job.Timeout)
		defer cancel()
	}

	params := make(map[string]string, len(runbook.Global.Params)+len(job.Params))
	for k, v := range runbook.Global.Params {
		params[k] = v
	}
	for k, v := range job.Params {
		params[k] = v
	}

	logger.Info("job started", "task", job.Task)
	msgs, err := r.tasks[job.Task](jobCtx, params)
	res.Messages = msgs
	res.EndTime = time.Now()
	res.Duration = res.EndTime.Sub(res.StartTime)

	switch {
	case err != nil:
		res.Error = err.Error()
	case !message.ErrorFree(msgs):
		res.Error = "job reported error messages"
	default:
		res.Success = true
	}

	if res.Success {
		logger.Info("job finished", "duration", res.Duration.Round(time.Millisecond).String(), "messages", len(msgs))
	} else {
		logger.Error("job failed", "error", res.Error, "duration", res.Duration.Round(time.Millisecond).String())
	}

	if r.store != nil && runID > 0 {
		status := connector.RunStatusSucceeded
		if !res.Success {
			status = connector.RunStatusFailed
		}
		if err := r.store.FinishRun(ctx, runID, status, encodeMessages(msgs, res.Error)); err != nil {
			logger.Warn("could not record run finish", "error", err)
		}
	}
	return res
}

// encodeMessages serializes a run's messages, appending the failure
// reason as an error message when the handler returned none.
func encodeMessages(msgs []message.Message, errText string) string {
	if errText != "" && message.ErrorFree(msgs) {
		msgs = append(msgs, message.NewError(errText))
	}
	if len(msgs) == 0 {
		return "[]"
	}
	data, err := json.Marshal(msgs)
	if err != nil {
		return "[]"
	}
	return string(data)
}
