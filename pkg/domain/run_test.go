package domain_test

import (
	"testing"

	"github.com/flowpool/flowpool/pkg/domain"
)

func TestFlowRunStatus(t *testing.T) {
	t.Run("AsFlowRunStatus parses every status", func(t *testing.T) {
		for _, status := range []domain.FlowRunStatus{
			domain.Waiting, domain.Claimed, domain.Starting, domain.Running,
			domain.Completing, domain.Aborting, domain.Done, domain.Failed,
			domain.Invalidated,
		} {
			actual, err := domain.AsFlowRunStatus(status.String())
			if err != nil {
				t.Fatal(err)
			}
			if actual != status {
				t.Errorf("parse roundtrip broken: %s", status)
			}
		}

		if _, err := domain.AsFlowRunStatus("no-such-status"); err == nil {
			t.Error("unknown status is accepted")
		}
	})

	t.Run("terminal statuses accept no successor", func(t *testing.T) {
		for _, terminal := range []domain.FlowRunStatus{
			domain.Done, domain.Failed, domain.Invalidated,
		} {
			for _, next := range []domain.FlowRunStatus{
				domain.Waiting, domain.Claimed, domain.Starting, domain.Running,
				domain.Completing, domain.Aborting, domain.Done, domain.Failed,
			} {
				if terminal.CanTransitTo(next) {
					t.Errorf("%s -> %s is allowed, unexpectedly", terminal, next)
				}
			}
		}
	})

	t.Run("the success path is legal end to end", func(t *testing.T) {
		path := []domain.FlowRunStatus{
			domain.Waiting, domain.Claimed, domain.Starting,
			domain.Running, domain.Completing, domain.Done,
		}
		for i := 0; i+1 < len(path); i++ {
			if !path[i].CanTransitTo(path[i+1]) {
				t.Errorf("%s -> %s is rejected, unexpectedly", path[i], path[i+1])
			}
		}
	})

	t.Run("failures funnel through aborting", func(t *testing.T) {
		for _, from := range []domain.FlowRunStatus{
			domain.Claimed, domain.Starting, domain.Running, domain.Completing,
		} {
			if !from.CanTransitTo(domain.Aborting) {
				t.Errorf("%s -> aborting is rejected, unexpectedly", from)
			}
			if from.CanTransitTo(domain.Failed) {
				t.Errorf("%s -> failed skips aborting, unexpectedly", from)
			}
		}
		if !domain.Aborting.CanTransitTo(domain.Failed) {
			t.Error("aborting -> failed is rejected, unexpectedly")
		}
	})

	t.Run("expired claims may return to waiting", func(t *testing.T) {
		if !domain.Claimed.CanTransitTo(domain.Waiting) {
			t.Error("claimed -> waiting is rejected, unexpectedly")
		}
		if domain.Running.CanTransitTo(domain.Waiting) {
			t.Error("running -> waiting is allowed, unexpectedly")
		}
	})
}

func TestRunParams_Chained(t *testing.T) {
	t.Run("uid_save is always overwritten with the run id", func(t *testing.T) {
		params := domain.RunParams{
			"io_parameters": map[string]any{
				"uid_save": "stale",
			},
		}

		chained := params.Chained("run-1", "")

		iop := chained["io_parameters"].(map[string]any)
		if iop["uid_save"] != "run-1" {
			t.Errorf("uid_save is not overwritten: %v", iop["uid_save"])
		}
	})

	t.Run("uid_retrieve is filled from the previous run only when empty", func(t *testing.T) {
		params := domain.RunParams{
			"io_parameters": map[string]any{
				"uid_retrieve": "",
			},
		}

		chained := params.Chained("run-2", "run-1")
		iop := chained["io_parameters"].(map[string]any)
		if iop["uid_retrieve"] != "run-1" {
			t.Errorf("uid_retrieve is not chained: %v", iop["uid_retrieve"])
		}

		explicit := domain.RunParams{
			"io_parameters": map[string]any{
				"uid_retrieve": "pinned",
			},
		}
		chained = explicit.Chained("run-2", "run-1")
		iop = chained["io_parameters"].(map[string]any)
		if iop["uid_retrieve"] != "pinned" {
			t.Errorf("explicit uid_retrieve is overwritten: %v", iop["uid_retrieve"])
		}
	})

	t.Run("it does not mutate the source params", func(t *testing.T) {
		params := domain.RunParams{"other": "value"}

		_ = params.Chained("run-3", "run-2")

		if _, ok := params["io_parameters"]; ok {
			t.Error("source params gained io_parameters, unexpectedly")
		}
	})

	t.Run("io_parameters is created when missing", func(t *testing.T) {
		params := domain.RunParams{}

		chained := params.Chained("run-4", "run-3")

		iop, ok := chained["io_parameters"].(map[string]any)
		if !ok {
			t.Fatal("io_parameters is not created")
		}
		if iop["uid_save"] != "run-4" || iop["uid_retrieve"] != "run-3" {
			t.Errorf("unexpected io_parameters: %v", iop)
		}
	})
}
