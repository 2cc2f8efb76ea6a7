// Package reconciler implements the periodic polling loop (C6): discovers
// engine-managed containers, reconstructs tasks from their labels,
// classifies each into a TaskStatus, reports status and flags upstream,
// and admits pending tasks up to the configured concurrency cap.
package reconciler

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/starbugs-ctf/fireball/internal/catalog"
	"github.com/starbugs-ctf/fireball/internal/engine"
	"github.com/starbugs-ctf/fireball/internal/outcome"
	"github.com/starbugs-ctf/fireball/internal/task"
)

// Reconciler drives one polling iteration over every engine-managed
// container. It holds no lock of its own — Run acquires the caller-supplied
// main lock for the duration of each iteration.
type Reconciler struct {
	Engine       engine.Client
	Catalog      *catalog.Catalog
	Outcome      *outcome.Gateway
	MaxRunning   int
	PollInterval time.Duration
}

// danglingMessage is reported upstream for containers whose labels cannot
// be reconciled to a known exploit.
const danglingMessage = "Dangling exploit"

// startFailureMessage is reported upstream when StartContainer fails
// during admission.
const startFailureMessage = "Failed to start the container"

// Run drives the polling loop until ctx is cancelled. Each iteration
// acquires lock for its duration; shutdown blocks until the in-flight
// iteration completes, then the ticker is stopped.
func (r *Reconciler) Run(ctx context.Context, lock *sync.Mutex) {
	ticker := time.NewTicker(r.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			lock.Lock()
			lock.Unlock() //nolint:staticcheck // drains any in-flight iteration before returning.
			return
		case <-ticker.C:
			r.runIterationSafely(ctx, lock)
		}
	}
}

// runIterationSafely recovers any panic within a single iteration so a bug
// reconciling one container never takes down the loop.
func (r *Reconciler) runIterationSafely(ctx context.Context, lock *sync.Mutex) {
	lock.Lock()
	defer lock.Unlock()
	defer func() {
		if p := recover(); p != nil {
			slog.Error("reconciler: iteration panicked, recovering", "panic", p)
		}
	}()
	r.RunIteration(ctx)
}

// RunIteration runs a single discovery/classify/report/admit pass. The
// caller must hold the main lock.
func (r *Reconciler) RunIteration(ctx context.Context) {
	containers, err := r.Engine.ListManagedContainers(ctx)
	if err != nil {
		slog.Warn("reconciler: failed to list managed containers", "err", err)
		return
	}

	var pending []*task.Task
	running := 0
	now := time.Now()

	for _, c := range containers {
		t, err := r.reconstruct(c)
		if err != nil {
			r.handleDangling(ctx, c, err)
			continue
		}

		out, err := t.RefreshStatus(ctx, r.Engine, now)
		if err != nil {
			slog.Warn("reconciler: failed to refresh task status", "task_id", t.TaskID, "err", err)
			continue
		}

		r.report(ctx, t, out)

		switch out.Status {
		case task.StatusPending:
			pending = append(pending, t)
		case task.StatusRunning:
			running++
		}
	}

	r.admit(ctx, pending, running)
}

// reconstruct builds a Task from a container's labels, looking up its
// timeout from the catalog entry for its exploit_id.
func (r *Reconciler) reconstruct(c engine.ContainerSummary) (*task.Task, error) {
	exploitID, ok := c.Labels[engine.LabelExploitID]
	if !ok || exploitID == "" {
		return task.FromLabels(c.Handle, c.Labels, 0)
	}
	e, ok := r.Catalog.Get(exploitID)
	timeout := 0
	if ok {
		timeout = e.TimeoutSeconds
	}
	t, err := task.FromLabels(c.Handle, c.Labels, timeout)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errUnknownExploit(exploitID)
	}
	return t, nil
}

type errUnknownExploit string

func (e errUnknownExploit) Error() string {
	return "reconciler: unknown exploit_id " + string(e)
}

// handleDangling force-deletes a container whose labels could not be
// reconciled and, if a task_id is recoverable from its labels, reports
// RUNTIME_ERROR upstream for it.
func (r *Reconciler) handleDangling(ctx context.Context, c engine.ContainerSummary, cause error) {
	slog.Warn("reconciler: dangling container, force-deleting", "handle", c.Handle, "err", cause)
	if err := r.Engine.DeleteContainer(ctx, c.Handle, true); err != nil {
		slog.Warn("reconciler: failed to delete dangling container", "handle", c.Handle, "err", err)
	}
	taskID, ok := task.RecoverTaskID(c.Labels)
	if !ok {
		return
	}
	r.Outcome.ReportStatus(ctx, &task.Task{TaskID: taskID}, task.StatusRuntimeError, "", "", danglingMessage)
}

// report pushes a non-PENDING task's status upstream and, for OKAY
// outcomes, submits the recovered flag and deletes the container. Tasks
// whose classification already calls for deletion (TIMEOUT, nonzero-exit
// RUNTIME_ERROR) are deleted after reporting too.
func (r *Reconciler) report(ctx context.Context, t *task.Task, out task.Outcome) {
	if out.Status == task.StatusPending {
		return
	}
	r.Outcome.ReportStatus(ctx, t, out.Status, out.Stdout, out.Stderr, out.StatusMessage)

	switch {
	case out.Status == task.StatusOkay:
		if out.Flag == nil {
			slog.Warn("reconciler: exploit exited 0 with no flag produced", "task_id", t.TaskID, "exploit_id", t.ExploitID)
		} else {
			r.Outcome.SubmitFlag(ctx, t, string(out.Flag))
		}
		r.deleteContainer(ctx, t, false)
	case out.Delete:
		r.deleteContainer(ctx, t, true)
	}
}

func (r *Reconciler) deleteContainer(ctx context.Context, t *task.Task, force bool) {
	if err := t.Delete(ctx, r.Engine, force); err != nil {
		slog.Warn("reconciler: failed to delete container", "task_id", t.TaskID, "err", err)
	}
}

// admit shuffles pending tasks for fairness and starts them one by one
// while running stays below MaxRunning.
func (r *Reconciler) admit(ctx context.Context, pending []*task.Task, running int) {
	rand.Shuffle(len(pending), func(i, j int) { pending[i], pending[j] = pending[j], pending[i] })
	for _, t := range pending {
		if running >= r.MaxRunning {
			return
		}
		if err := t.Start(ctx, r.Engine); err != nil {
			slog.Warn("reconciler: failed to start container, marking RUNTIME_ERROR", "task_id", t.TaskID, "err", err)
			r.Outcome.ReportStatus(ctx, t, task.StatusRuntimeError, "", "", startFailureMessage)
			r.deleteContainer(ctx, t, true)
			continue
		}
		running++
	}
}
