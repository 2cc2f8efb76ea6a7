// Package scheduler enumerates (enabled exploit x eligible team) pairs on
// each game tick, resolves team endpoints, and creates — but does not
// start — containers in pending state with their metadata labels.
package scheduler

import (
	"context"
	"log/slog"

	"github.com/starbugs-ctf/fireball/internal/catalog"
	"github.com/starbugs-ctf/fireball/internal/engine"
	"github.com/starbugs-ctf/fireball/internal/exploit"
	"github.com/starbugs-ctf/fireball/internal/siren"
	"github.com/starbugs-ctf/fireball/internal/task"
)

// Registry is the subset of the Siren client the scheduler needs to
// resolve endpoints and register tasks upstream.
type Registry interface {
	Endpoint(ctx context.Context, teamID, problemID int) (siren.Endpoint, error)
	CreateTask(ctx context.Context, roundID int, imageID string, teamID int) (int, error)
}

// Scheduler creates containers for exploit runs. It does not start them —
// that is the reconciler's responsibility (§4.6, admission step).
type Scheduler struct {
	engine   engine.Client
	registry Registry

	// Teams and ProblemIDs are refreshed by the caller (admin /refresh) and
	// read under the caller's main lock.
	Teams      []siren.Team
	ProblemIDs map[string]int // challenge slug -> problem id

	CurrentRound int // negative means the contest has not started
}

// New returns a Scheduler with no teams or problems loaded yet; call
// Refresh-equivalent setup (setting Teams/ProblemIDs) before StartExploit.
func New(eng engine.Client, registry Registry) *Scheduler {
	return &Scheduler{
		engine:       eng,
		registry:     registry,
		ProblemIDs:   make(map[string]int),
		CurrentRound: -1,
	}
}

// StartExploit creates pending containers for every eligible team. A no-op
// if the contest has not started or the exploit is disabled.
func (s *Scheduler) StartExploit(ctx context.Context, e *exploit.Exploit) {
	if s.CurrentRound < 0 {
		return
	}
	if !e.Enabled {
		return
	}

	problemID, ok := s.ProblemIDs[e.ChallengeName]
	if !ok {
		slog.Warn("scheduler: no problem id for challenge, skipping", "challenge", e.ChallengeName)
		return
	}

	for _, team := range s.Teams {
		if e.IgnoresTeam(team.Slug) {
			continue
		}
		s.scheduleOne(ctx, e, problemID, team)
	}
}

func (s *Scheduler) scheduleOne(ctx context.Context, e *exploit.Exploit, problemID int, team siren.Team) {
	endpoint, err := s.registry.Endpoint(ctx, team.ID, problemID)
	if err != nil {
		slog.Warn("scheduler: failed to resolve endpoint", "exploit_id", e.ExploitID, "team", team.Slug, "err", err)
		return
	}

	taskID, err := s.registry.CreateTask(ctx, s.CurrentRound, e.ImageID, team.ID)
	if err != nil {
		slog.Warn("scheduler: failed to create task upstream", "exploit_id", e.ExploitID, "team", team.Slug, "err", err)
		return
	}

	env := map[string]string{"HOST": endpoint.Host, "PORT": endpoint.Port}
	labels := task.Labels(e.ExploitID, taskID, team.Slug)
	if _, err := s.engine.CreateContainer(ctx, e.ImageID, env, labels); err != nil {
		slog.Warn("scheduler: failed to create container", "exploit_id", e.ExploitID, "team", team.Slug, "task_id", taskID, "err", err)
		return
	}
}

// GameTick sets the current round and schedules every enabled exploit in
// the catalog against every eligible team. The caller holds the main lock.
func GameTick(ctx context.Context, s *Scheduler, cat *catalog.Catalog, roundID int) {
	s.CurrentRound = roundID
	for _, e := range cat.All() {
		s.StartExploit(ctx, e)
	}
}
