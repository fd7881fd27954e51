package orchestration

import (
	"time"

	"github.com/finward/opsflow/internal/message"
)

// Runbook is the top-level configuration for a set of automation jobs.
type Runbook struct {
	APIVersion string `yaml:"apiVersion"`
	Kind       string `yaml:"kind"`
	Jobs       []Job  `yaml:"jobs"`
	Global     Global `yaml:"global"`
}

// Failure policies a job may declare.
const (
	OnFailureStop           = "stop"
	OnFailureContinue       = "continue"
	OnFailureSkipDependents = "skip_dependents"
)

// Job is one automation job in the runbook. Task names a registered
// handler; Params are passed to it verbatim.
type Job struct {
	Name      string            `yaml:"name"`
	Task      string            `yaml:"task"`
	DependsOn []string          `yaml:"depends_on"`
	Params    map[string]string `yaml:"params"`
	OnFailure string            `yaml:"on_failure"` // stop, continue, skip_dependents
	Timeout   time.Duration     `yaml:"timeout"`
}

// Global holds settings shared by every job in the runbook.
type Global struct {
	Params          map[string]string `yaml:"params"`
	WaitBetweenJobs time.Duration     `yaml:"wait_between_jobs"`
}

// JobResult records one job's execution inside a runbook run.
type JobResult struct {
	Name      string
	Success   bool
	Skipped   bool
	Error     string
	Messages  []message.Message
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration

	failurePolicy string
}
