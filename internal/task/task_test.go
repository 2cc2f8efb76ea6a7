package task

import (
	"context"
	"testing"
	"time"

	"github.com/starbugs-ctf/fireball/internal/engine"
)

func TestClassifyPending(t *testing.T) {
	for _, state := range []string{"created", "paused"} {
		out := classify(engine.ContainerState{State: state}, 30, time.Now())
		if out.Status != StatusPending {
			t.Errorf("state %s: status = %s, want PENDING", state, out.Status)
		}
	}
}

func TestClassifyRunningWithinTimeout(t *testing.T) {
	now := time.Now()
	out := classify(engine.ContainerState{State: "running", StartedAt: now.Add(-5 * time.Second)}, 30, now)
	if out.Status != StatusRunning {
		t.Errorf("status = %s, want RUNNING", out.Status)
	}
}

func TestClassifyRunningPastTimeout(t *testing.T) {
	now := time.Now()
	out := classify(engine.ContainerState{State: "running", StartedAt: now.Add(-60 * time.Second)}, 30, now)
	if out.Status != StatusTimeout {
		t.Errorf("status = %s, want TIMEOUT", out.Status)
	}
	if !out.Delete {
		t.Error("expected Delete = true on timeout")
	}
}

func TestClassifyExitedZero(t *testing.T) {
	out := classify(engine.ContainerState{State: "exited", ExitCode: 0}, 30, time.Now())
	if out.Status != StatusOkay {
		t.Errorf("status = %s, want OKAY", out.Status)
	}
	if out.Delete {
		t.Error("OKAY should not request immediate delete; caller deletes post-submission")
	}
}

func TestClassifyExitedNonzero(t *testing.T) {
	out := classify(engine.ContainerState{State: "exited", ExitCode: 1}, 30, time.Now())
	if out.Status != StatusRuntimeError {
		t.Errorf("status = %s, want RUNTIME_ERROR", out.Status)
	}
	if !out.Delete {
		t.Error("expected Delete = true for nonzero exit")
	}
}

func TestClassifyOtherStatesRetained(t *testing.T) {
	for _, state := range []string{"restarting", "removing", "dead", "weird"} {
		out := classify(engine.ContainerState{State: state}, 30, time.Now())
		if out.Status != StatusRuntimeError {
			t.Errorf("state %s: status = %s, want RUNTIME_ERROR", state, out.Status)
		}
		if out.Delete {
			t.Errorf("state %s: expected container retained, not deleted", state)
		}
	}
}

func TestRefreshStatusOkayWithFlag(t *testing.T) {
	eng := engine.NewFake()
	handle, _ := eng.CreateContainer(context.Background(), "img", nil, nil)
	eng.SetState(handle, engine.ContainerState{State: "exited", ExitCode: 0})
	eng.SetFile(handle, FlagPath, []byte("flag{ok}"))

	tk := &Task{TaskID: 1, ContainerHandle: handle, TimeoutSeconds: 30}
	out, err := tk.RefreshStatus(context.Background(), eng, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if out.Status != StatusOkay {
		t.Errorf("status = %s, want OKAY", out.Status)
	}
	if string(out.Flag) != "flag{ok}" {
		t.Errorf("flag = %q", out.Flag)
	}
}

func TestRefreshStatusOkayWithoutFlagIsNotError(t *testing.T) {
	eng := engine.NewFake()
	handle, _ := eng.CreateContainer(context.Background(), "img", nil, nil)
	eng.SetState(handle, engine.ContainerState{State: "exited", ExitCode: 0})

	tk := &Task{TaskID: 1, ContainerHandle: handle, TimeoutSeconds: 30}
	out, err := tk.RefreshStatus(context.Background(), eng, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if out.Status != StatusOkay {
		t.Errorf("status = %s, want OKAY", out.Status)
	}
	if out.Flag != nil {
		t.Errorf("flag = %q, want nil", out.Flag)
	}
}

func TestFromLabelsRoundTrip(t *testing.T) {
	labels := Labels("high:ground", 99, "blue")
	tk, err := FromLabels("handle-1", labels, 30)
	if err != nil {
		t.Fatal(err)
	}
	if tk.TaskID != 99 || tk.ExploitID != "high:ground" || tk.TeamSlug != "blue" {
		t.Errorf("task = %+v", tk)
	}
}

func TestFromLabelsMissingIsDangling(t *testing.T) {
	if _, err := FromLabels("handle-1", map[string]string{"fireball.managed": "true"}, 30); err == nil {
		t.Error("expected error for missing labels")
	}
}

func TestRecoverTaskID(t *testing.T) {
	id, ok := RecoverTaskID(map[string]string{"fireball.task_id": "123"})
	if !ok || id != 123 {
		t.Errorf("RecoverTaskID = %d, %v", id, ok)
	}
	if _, ok := RecoverTaskID(map[string]string{}); ok {
		t.Error("expected ok=false for missing label")
	}
}
