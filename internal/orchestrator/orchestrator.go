// Package orchestrator wires the catalog, repo watcher, scheduler, and
// reconciler together behind the single exclusive lock that serializes
// every phase that mutates shared state (§5).
package orchestrator

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/starbugs-ctf/fireball/internal/catalog"
	"github.com/starbugs-ctf/fireball/internal/engine"
	"github.com/starbugs-ctf/fireball/internal/exploit"
	"github.com/starbugs-ctf/fireball/internal/outcome"
	"github.com/starbugs-ctf/fireball/internal/reconciler"
	"github.com/starbugs-ctf/fireball/internal/repo"
	"github.com/starbugs-ctf/fireball/internal/scheduler"
	"github.com/starbugs-ctf/fireball/internal/siren"
)

// SirenClient is the subset of the Siren client the orchestrator itself
// calls directly (teams/problems refresh); narrower subsets are consumed
// by Catalog, Scheduler, and Outcome.
type SirenClient interface {
	Teams(ctx context.Context) ([]siren.Team, error)
	Problems(ctx context.Context) ([]siren.Problem, error)
	CurrentRound(ctx context.Context) (int, error)
}

// Orchestrator is the top-level coordinator: it owns the main lock and
// exposes Connect/Scan/GameTick/StartExploit/Refresh as the operations the
// admin HTTP surface and the reconciler loop drive.
type Orchestrator struct {
	lock sync.Mutex

	Engine  engine.Client
	Siren   SirenClient
	Catalog *catalog.Catalog
	Repo    *repo.Repo

	Scheduler  *scheduler.Scheduler
	Reconciler *reconciler.Reconciler
	Outcome    *outcome.Gateway

	problemsBySlug map[string]siren.Problem
}

// New wires a fully-constructed Orchestrator from its collaborators.
func New(eng engine.Client, sirenClient SirenClient, cat *catalog.Catalog, r *repo.Repo, sched *scheduler.Scheduler, rec *reconciler.Reconciler, gw *outcome.Gateway) *Orchestrator {
	return &Orchestrator{
		Engine:         eng,
		Siren:          sirenClient,
		Catalog:        cat,
		Repo:           r,
		Scheduler:      sched,
		Reconciler:     rec,
		Outcome:        gw,
		problemsBySlug: make(map[string]siren.Problem),
	}
}

// Lock exposes the main lock so the reconciler's Run loop can serialize its
// iterations against orchestrator-mutating operations.
func (o *Orchestrator) Lock() *sync.Mutex { return &o.lock }

// Connect bootstraps the catalog from every exploit directory present on
// disk and refreshes teams/problems. Called once at startup.
func (o *Orchestrator) Connect(ctx context.Context) error {
	o.lock.Lock()
	defer o.lock.Unlock()

	if err := o.refreshTeamsAndProblems(ctx); err != nil {
		return err
	}

	dirs, err := o.Repo.Connect(ctx)
	if err != nil {
		return err
	}
	for _, d := range dirs {
		o.loadAndPut(ctx, d)
	}
	return nil
}

// Refresh replaces the in-memory teams/problems maps from the scoring
// backend.
func (o *Orchestrator) Refresh(ctx context.Context) error {
	o.lock.Lock()
	defer o.lock.Unlock()
	return o.refreshTeamsAndProblems(ctx)
}

func (o *Orchestrator) refreshTeamsAndProblems(ctx context.Context) error {
	teams, err := o.Siren.Teams(ctx)
	if err != nil {
		return err
	}
	problems, err := o.Siren.Problems(ctx)
	if err != nil {
		return err
	}
	o.Scheduler.Teams = teams
	o.problemsBySlug = make(map[string]siren.Problem, len(problems))
	o.Scheduler.ProblemIDs = make(map[string]int, len(problems))
	for _, p := range problems {
		o.problemsBySlug[p.Slug] = p
		o.Scheduler.ProblemIDs[p.Slug] = p.ID
	}
	return nil
}

// Scan fetches and diffs the repo, loading new/updated exploit directories
// and removing catalog entries for deleted ones.
func (o *Orchestrator) Scan(ctx context.Context) error {
	o.lock.Lock()
	defer o.lock.Unlock()

	result, err := o.Repo.Scan(ctx)
	if err != nil {
		return err
	}
	if result == nil {
		return nil
	}
	for _, d := range result.Updated {
		o.loadAndPut(ctx, d)
	}
	for _, d := range result.Removed {
		problemID := o.problemsBySlug[d.Challenge].ID
		o.Catalog.Remove(ctx, problemID, d.ExploitID())
	}
	return nil
}

// loadAndPut loads an exploit directory and, on success, inserts it into
// the catalog. Load failures are logged and the directory is skipped —
// they never abort the surrounding scan.
func (o *Orchestrator) loadAndPut(ctx context.Context, d repo.Dir) {
	dirAbs := filepath.Join(o.Repo.Path, d.RelPath())
	e, err := exploit.FromPath(ctx, o.Engine, dirAbs, d.Challenge, d.Name)
	if err != nil {
		slog.Warn("orchestrator: failed to load exploit, skipping", "dir", d.RelPath(), "err", err)
		return
	}
	problemID := o.problemsBySlug[d.Challenge].ID
	o.Catalog.Put(ctx, problemID, e)
}

// GameTick sets the current round and schedules every enabled exploit
// against every eligible team.
func (o *Orchestrator) GameTick(ctx context.Context, roundID int) {
	o.lock.Lock()
	defer o.lock.Unlock()
	scheduler.GameTick(ctx, o.Scheduler, o.Catalog, roundID)
}

// StartExploit schedules a single exploit by id, acquiring the main lock
// itself (the admin /exec endpoint's entry point).
func (o *Orchestrator) StartExploit(ctx context.Context, exploitID string) {
	o.lock.Lock()
	defer o.lock.Unlock()
	e, ok := o.Catalog.Get(exploitID)
	if !ok {
		slog.Warn("orchestrator: exec requested for unknown exploit", "exploit_id", exploitID)
		return
	}
	o.Scheduler.StartExploit(ctx, e)
}
