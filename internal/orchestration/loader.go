package orchestration

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// LoadRunbook loads a runbook configuration from a YAML file.
func LoadRunbook(configPath string) (*Runbook, error) {
	cleanPath := filepath.Clean(configPath)

	// #nosec G304 -- path is provided by user configuration
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read runbook file %s: %w", cleanPath, err)
	}

	var runbook Runbook
	if err := yaml.Unmarshal(data, &runbook); err != nil {
		return nil, fmt.Errorf("failed to parse runbook: %w", err)
	}

	// Set defaults
	if runbook.APIVersion == "" {
		runbook.APIVersion = "opsflow/v1"
	}
	if runbook.Kind == "" {
		runbook.Kind = "Runbook"
	}

	if err := validateRunbook(&runbook); err != nil {
		return nil, fmt.Errorf("invalid runbook: %w", err)
	}

	return &runbook, nil
}

// validateRunbook checks names, tasks, failure policies, and the
// dependency graph.
func validateRunbook(runbook *Runbook) error {
	if len(runbook.Jobs) == 0 {
		return fmt.Errorf("no jobs defined")
	}

	jobNames := make(map[string]bool)
	for i, job := range runbook.Jobs {
		if job.Name == "" {
			return fmt.Errorf("job %d: name is required", i)
		}
		if jobNames[job.Name] {
			return fmt.Errorf("duplicate job name: %s", job.Name)
		}
		jobNames[job.Name] = true

		if job.Task == "" {
			return fmt.Errorf("job %s: task is required", job.Name)
		}

		switch job.OnFailure {
		case "", OnFailureStop, OnFailureContinue, OnFailureSkipDependents:
		default:
			return fmt.Errorf("job %s: invalid on_failure value: %s (must be one of: stop, continue, skip_dependents)", job.Name, job.OnFailure)
		}

		for _, dep := range job.DependsOn {
			if dep == job.Name {
				return fmt.Errorf("job %s: cannot depend on itself", job.Name)
			}
		}
	}

	// Dependencies may reference jobs declared later, so check them
	// after the full name set is known.
	for _, job := range runbook.Jobs {
		for _, dep := range job.DependsOn {
			if !jobNames[dep] {
				return fmt.Errorf("job %s: dependency %s not found", job.Name, dep)
			}
		}
	}

	if err := checkCycles(runbook.Jobs); err != nil {
		return err
	}

	return nil
}

// checkCycles rejects dependency cycles with a depth-first walk.
func checkCycles(jobs []Job) error {
	deps := make(map[string][]string, len(jobs))
	for _, job := range jobs {
		deps[job.Name] = job.DependsOn
	}

	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(jobs))

	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case visiting:
			return fmt.Errorf("dependency cycle through job %s", name)
		case done:
			return nil
		}
		state[name] = visiting
		for _, dep := range deps[name] {
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[name] = done
		return nil
	}

	for _, job := range jobs {
		if err := visit(job.Name); err != nil {
			return err
		}
	}
	return nil
}
