package orchestration

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/finward/opsflow/internal/message"
	"github.com/finward/opsflow/internal/store"
	"github.com/finward/opsflow/internal/store/connector"
)

func noopTask(ctx context.Context, params map[string]string) ([]message.Message, error) {
	return []message.Message{message.NewInfo("ok")}, nil
}

func failingTask(ctx context.Context, params map[string]string) ([]message.Message, error) {
	return nil, errors.New("service unavailable")
}

func runbookOf(jobs ...Job) *Runbook {
	return &Runbook{APIVersion: "opsflow/v1", Kind: "Runbook", Jobs: jobs}
}

func names(results []JobResult) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		out = append(out, r.Name)
	}
	return out
}

func TestRunExecutesInDependencyOrder(t *testing.T) {
	var order []string
	r := NewRunner(nil)
	r.Register("t", func(ctx context.Context, params map[string]string) ([]message.Message, error) {
		order = append(order, params["job"])
		return nil, nil
	})

	rb := runbookOf(
		Job{Name: "report", Task: "t", DependsOn: []string{"journals"}, Params: map[string]string{"job": "report"}},
		Job{Name: "journals", Task: "t", Params: map[string]string{"job": "journals"}},
	)
	results, err := r.Run(context.Background(), rb)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(order) != 2 || order[0] != "journals" || order[1] != "report" {
		t.Errorf("execution order wrong: %v", order)
	}
	for _, res := range results {
		if !res.Success {
			t.Errorf("job %s should succeed: %s", res.Name, res.Error)
		}
	}
}

func TestRunRejectsUnregisteredTask(t *testing.T) {
	r := NewRunner(nil)
	_, err := r.Run(context.Background(), runbookOf(Job{Name: "a", Task: "ghost"}))
	if err == nil || !strings.Contains(err.Error(), "no handler registered") {
		t.Fatalf("expected missing handler error, got %v", err)
	}
}

func TestRunStopPolicyHaltsRunbook(t *testing.T) {
	r := NewRunner(nil)
	r.Register("fail", failingTask)
	r.Register("ok", noopTask)

	rb := runbookOf(
		Job{Name: "a", Task: "fail", OnFailure: OnFailureStop},
		Job{Name: "b", Task: "ok"},
	)
	results, err := r.Run(context.Background(), rb)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := names(results); len(got) != 1 || got[0] != "a" {
		t.Errorf("stop policy should halt after the failure: %v", got)
	}
	if results[0].Success || results[0].Error == "" {
		t.Errorf("failed job not recorded: %+v", results[0])
	}
}

func TestRunContinuePolicyKeepsGoing(t *testing.T) {
	r := NewRunner(nil)
	r.Register("fail", failingTask)
	r.Register("ok", noopTask)

	rb := runbookOf(
		Job{Name: "a", Task: "fail", OnFailure: OnFailureContinue},
		Job{Name: "b", Task: "ok", DependsOn: []string{"a"}},
	)
	results, err := r.Run(context.Background(), rb)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("continue policy should run both jobs: %v", names(results))
	}
	if results[0].Success || !results[1].Success || results[1].Skipped {
		t.Errorf("continue failure should still release dependents: %+v", results)
	}
}

func TestRunSkipDependentsIsTransitive(t *testing.T) {
	r := NewRunner(nil)
	r.Register("fail", failingTask)
	r.Register("ok", noopTask)

	rb := runbookOf(
		Job{Name: "a", Task: "fail", OnFailure: OnFailureSkipDependents},
		Job{Name: "b", Task: "ok", DependsOn: []string{"a"}},
		Job{Name: "c", Task: "ok", DependsOn: []string{"b"}},
		Job{Name: "d", Task: "ok"},
	)
	results, err := r.Run(context.Background(), rb)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	byName := make(map[string]JobResult)
	for _, res := range results {
		byName[res.Name] = res
	}
	if !byName["b"].Skipped || !byName["c"].Skipped {
		t.Errorf("dependents should be skipped transitively: %+v", results)
	}
	if !byName["d"].Success {
		t.Errorf("unrelated job should still run")
	}
}

func TestRunErrorMessagesMarkJobFailed(t *testing.T) {
	r := NewRunner(nil)
	r.Register("t", func(ctx context.Context, params map[string]string) ([]message.Message, error) {
		return []message.Message{
			message.NewInfo("started"),
			message.NewError("ledger page malformed"),
		}, nil
	})

	results, err := r.Run(context.Background(), runbookOf(Job{Name: "a", Task: "t"}))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if results[0].Success {
		t.Errorf("error message should fail the job")
	}
	if len(results[0].Messages) != 2 {
		t.Errorf("messages should be preserved: %+v", results[0].Messages)
	}
}

func TestRunMergesGlobalParams(t *testing.T) {
	var got map[string]string
	r := NewRunner(nil)
	r.Register("t", func(ctx context.Context, params map[string]string) ([]message.Message, error) {
		got = params
		return nil, nil
	})

	rb := runbookOf(Job{Name: "a", Task: "t", Params: map[string]string{"period": "2026-06"}})
	rb.Global.Params = map[string]string{"client": "acme", "period": "override-me"}
	if _, err := r.Run(context.Background(), rb); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got["client"] != "acme" || got["period"] != "2026-06" {
		t.Errorf("param merge wrong: %v", got)
	}
}

func TestRunRecordsRunsInStore(t *testing.T) {
	st, err := store.Open(store.DriverSqlite, map[string]interface{}{"path": ":memory:"})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	r := NewRunner(st)
	r.Register("ok", noopTask)
	r.Register("fail", failingTask)

	rb := runbookOf(
		Job{Name: "good", Task: "ok", OnFailure: OnFailureContinue},
		Job{Name: "bad", Task: "fail", OnFailure: OnFailureContinue},
	)
	if _, err := r.Run(context.Background(), rb); err != nil {
		t.Fatalf("run: %v", err)
	}

	runs, err := st.ListRuns(context.Background())
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 recorded runs, got %d", len(runs))
	}
	byJob := make(map[string]connector.RunRecord)
	for _, run := range runs {
		byJob[run.Job] = run
	}
	if byJob["good"].Status != connector.RunStatusSucceeded {
		t.Errorf("good run status = %s", byJob["good"].Status)
	}
	if byJob["bad"].Status != connector.RunStatusFailed {
		t.Errorf("bad run status = %s", byJob["bad"].Status)
	}
	if !strings.Contains(byJob["bad"].Messages, "service unavailable") {
		t.Errorf("failure reason not persisted: %s", byJob["bad"].Messages)
	}
}

func TestRunJobRunsDependencyClosure(t *testing.T) {
	var order []string
	r := NewRunner(nil)
	r.Register("t", func(ctx context.Context, params map[string]string) ([]message.Message, error) {
		order = append(order, params["job"])
		return nil, nil
	})

	rb := runbookOf(
		Job{Name: "base", Task: "t", Params: map[string]string{"job": "base"}},
		Job{Name: "mid", Task: "t", DependsOn: []string{"base"}, Params: map[string]string{"job": "mid"}},
		Job{Name: "top", Task: "t", DependsOn: []string{"mid"}, Params: map[string]string{"job": "top"}},
		Job{Name: "other", Task: "t", Params: map[string]string{"job": "other"}},
	)
	results, err := r.RunJob(context.Background(), rb, "top")
	if err != nil {
		t.Fatalf("run job: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected the 3-job closure, got %v", names(results))
	}
	if len(order) != 3 || order[0] != "base" || order[2] != "top" {
		t.Errorf("closure order wrong: %v", order)
	}
}

func TestRunJobUnknownName(t *testing.T) {
	r := NewRunner(nil)
	rb := runbookOf(Job{Name: "a", Task: "t"})
	if _, err := r.RunJob(context.Background(), rb, "ghost"); err == nil {
		t.Fatalf("expected unknown job error")
	}
}
