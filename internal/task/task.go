// Package task models a single scheduled exploit run and the container
// lifecycle state machine that derives its status.
package task

import (
	"context"
	"fmt"
	"time"

	"github.com/starbugs-ctf/fireball/internal/engine"
)

// Status is the lifecycle stage of a task, derived from the container's
// engine-reported state.
type Status string

const (
	StatusPending      Status = "PENDING"
	StatusRunning      Status = "RUNNING"
	StatusOkay         Status = "OKAY"
	StatusRuntimeError Status = "RUNTIME_ERROR"
	StatusTimeout      Status = "TIMEOUT"
)

// FlagPath is the fixed location exploits are expected to write a
// recovered flag to.
const FlagPath = "/tmp/flag"

// Outcome is the result of classifying a container's current state.
type Outcome struct {
	Status        Status
	Stdout        string
	Stderr        string
	Flag          []byte // only set for StatusOkay, may still be nil if no flag was produced
	StatusMessage string
	Delete        bool // whether the container should be deleted as a side effect
}

// Task binds a scheduled run to its container handle and scoring-backend
// identity. The task_id is the authoritative cross-system correlator.
type Task struct {
	TaskID          int
	ExploitID       string
	TeamSlug        string
	ContainerHandle string
	TimeoutSeconds  int

	LastStatus Status
}

// Start starts the task's container. The next RefreshStatus call is
// expected to observe RUNNING.
func (t *Task) Start(ctx context.Context, eng engine.Client) error {
	return eng.StartContainer(ctx, t.ContainerHandle)
}

// Delete removes the task's container, forcing removal if force is true.
func (t *Task) Delete(ctx context.Context, eng engine.Client, force bool) error {
	return eng.DeleteContainer(ctx, t.ContainerHandle, force)
}

// RefreshStatus inspects the task's container and classifies it per the
// state machine: created/paused -> PENDING; running within timeout ->
// RUNNING; running past timeout -> TIMEOUT (Outcome.Delete set); exited
// code 0 -> OKAY (flag extracted, container retained for the caller to
// delete after reporting); exited nonzero -> RUNTIME_ERROR (Outcome.Delete
// set); anything else -> RUNTIME_ERROR (retained for operator inspection).
// RefreshStatus never deletes the container itself.
func (t *Task) RefreshStatus(ctx context.Context, eng engine.Client, now time.Time) (Outcome, error) {
	state, err := eng.InspectContainer(ctx, t.ContainerHandle)
	if err != nil {
		return Outcome{}, fmt.Errorf("task %d: inspect: %w", t.TaskID, err)
	}

	outcome := classify(state, t.TimeoutSeconds, now)
	if outcome.Status == StatusOkay {
		flag, err := eng.CopyFileFromContainer(ctx, t.ContainerHandle, FlagPath)
		switch {
		case err == nil:
			outcome.Flag = flag
		case err == engine.ErrNotFound:
			outcome.Flag = nil
		default:
			return Outcome{}, fmt.Errorf("task %d: extract flag: %w", t.TaskID, err)
		}
	}

	stdout, stderr, logErr := eng.ContainerLogs(ctx, t.ContainerHandle)
	if logErr == nil {
		outcome.Stdout, outcome.Stderr = stdout, stderr
	}

	t.LastStatus = outcome.Status
	return outcome, nil
}

// classify implements the engine-state -> TaskStatus table.
func classify(state engine.ContainerState, timeoutSeconds int, now time.Time) Outcome {
	switch state.State {
	case "created", "paused":
		return Outcome{Status: StatusPending}
	case "running":
		if state.StartedAt.IsZero() || now.Sub(state.StartedAt) <= time.Duration(timeoutSeconds)*time.Second {
			return Outcome{Status: StatusRunning}
		}
		return Outcome{Status: StatusTimeout, Delete: true}
	case "exited":
		if state.ExitCode == 0 {
			return Outcome{Status: StatusOkay}
		}
		return Outcome{Status: StatusRuntimeError, Delete: true, StatusMessage: fmt.Sprintf("exited with code %d", state.ExitCode)}
	default:
		return Outcome{Status: StatusRuntimeError, StatusMessage: fmt.Sprintf("unexpected container state %q", state.State)}
	}
}

// FromLabels reconstructs a Task from a container's labels. Returns an
// error if any required label is missing or malformed, meaning the
// container is dangling.
func FromLabels(handle string, labels map[string]string, timeoutSeconds int) (*Task, error) {
	exploitID, ok := labels[engine.LabelExploitID]
	if !ok || exploitID == "" {
		return nil, fmt.Errorf("task: missing %s label", engine.LabelExploitID)
	}
	teamSlug, ok := labels[engine.LabelTeamSlug]
	if !ok || teamSlug == "" {
		return nil, fmt.Errorf("task: missing %s label", engine.LabelTeamSlug)
	}
	taskIDStr, ok := labels[engine.LabelTaskID]
	if !ok || taskIDStr == "" {
		return nil, fmt.Errorf("task: missing %s label", engine.LabelTaskID)
	}
	var taskID int
	if _, err := fmt.Sscanf(taskIDStr, "%d", &taskID); err != nil {
		return nil, fmt.Errorf("task: malformed %s label %q: %w", engine.LabelTaskID, taskIDStr, err)
	}

	return &Task{
		TaskID:          taskID,
		ExploitID:       exploitID,
		TeamSlug:        teamSlug,
		ContainerHandle: handle,
		TimeoutSeconds:  timeoutSeconds,
	}, nil
}

// RecoverTaskID attempts to parse a task id out of a dangling container's
// labels, for reporting RUNTIME_ERROR upstream even when other labels are
// missing or malformed.
func RecoverTaskID(labels map[string]string) (int, bool) {
	taskIDStr, ok := labels[engine.LabelTaskID]
	if !ok || taskIDStr == "" {
		return 0, false
	}
	var taskID int
	if _, err := fmt.Sscanf(taskIDStr, "%d", &taskID); err != nil {
		return 0, false
	}
	return taskID, true
}

// Labels returns the fireball.* label set a task's container must carry.
func Labels(exploitID string, taskID int, teamSlug string) map[string]string {
	return map[string]string{
		engine.LabelManaged:   "true",
		engine.LabelExploitID: exploitID,
		engine.LabelTaskID:    fmt.Sprintf("%d", taskID),
		engine.LabelTeamSlug:  teamSlug,
	}
}
