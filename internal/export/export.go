// Package export drives the asynchronous document export service:
// submit a rendering job, then poll its result until the job leaves
// the pending state.
package export

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/finward/opsflow/internal/common"
	"github.com/finward/opsflow/internal/fetch"
	"github.com/finward/opsflow/internal/httpx"
)

// Job states reported by the results endpoint.
const (
	statusPending  = "pending"
	statusComplete = "complete"
)

// Request describes one rendering job.
type Request struct {
	Source  string            `json:"source"`
	Format  string            `json:"format"`
	Options map[string]string `json:"options,omitempty"`
}

// Service submits jobs and collects their rendered output.
type Service struct {
	api    *httpx.Client
	poller fetch.Poller
	logger *common.Logger
}

// New builds a Service with the default poll cadence.
func New(api *httpx.Client) *Service {
	return &Service{
		api: api,
		poller: fetch.Poller{
			Interval: fetch.DefaultPollInterval,
			Deadline: fetch.DefaultPollDeadline,
		},
		logger: common.GetLogger().WithComponent("export"),
	}
}

// WithPoller overrides the poll cadence, mainly for tests.
func (s *Service) WithPoller(p fetch.Poller) *Service {
	s.poller = p
	return s
}

// Submit queues a rendering job and returns its task id.
func (s *Service) Submit(ctx context.Context, req Request) (string, error) {
	out := s.api.Post(ctx, "render", httpx.WithBody(req))
	if !out.OK {
		return "", fmt.Errorf("export submit failed: %w", out.Failure)
	}
	taskID := out.Get("task_id").String()
	if taskID == "" {
		return "", &httpx.Failure{
			Kind:   httpx.FailMalformed,
			Status: out.Status,
			Detail: "submit response carries no task_id",
		}
	}
	s.logger.WithJob(taskID).Debug("export job submitted", "format", req.Format)
	return taskID, nil
}

// Fetch polls the job until it leaves pending, then decodes the
// rendered content. A terminal state other than complete is an error.
func (s *Service) Fetch(ctx context.Context, taskID string) ([]byte, error) {
	var content []byte
	started := time.Now()
	err := s.poller.Poll(ctx, func(ctx context.Context) (bool, error) {
		out := s.api.Get(ctx, "results/"+taskID)
		if !out.OK {
			return false, fmt.Errorf("export poll failed for %s: %w", taskID, out.Failure)
		}
		switch status := out.Get("status").String(); status {
		case statusPending:
			return false, nil
		case statusComplete:
			artifact := out.Get("content")
			if !artifact.Exists() {
				return false, &httpx.Failure{
					Kind:   httpx.FailMalformed,
					Status: out.Status,
					Detail: "complete response carries no content",
				}
			}
			decoded, err := base64.StdEncoding.DecodeString(artifact.String())
			if err != nil {
				return false, &httpx.Failure{
					Kind:   httpx.FailMalformed,
					Status: out.Status,
					Detail: "rendered content is not valid base64",
					Err:    err,
				}
			}
			content = decoded
			return true, nil
		default:
			return false, fmt.Errorf("export job %s ended in state %q: %s", taskID, status, out.Get("error").String())
		}
	})
	if err != nil {
		return nil, err
	}
	s.logger.WithJob(taskID).Info("export job finished",
		"bytes", len(content), "elapsed", time.Since(started).Round(time.Millisecond).String())
	return content, nil
}

// Render submits a job and waits for its output in one call.
func (s *Service) Render(ctx context.Context, req Request) ([]byte, error) {
	taskID, err := s.Submit(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.Fetch(ctx, taskID)
}
