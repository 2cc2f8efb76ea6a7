// Package outcome is the single entry point that records a task's result
// to the scoring backend and, for non-self flags, to the upstream game
// API — with a fixed response-code normalization so exactly one flag
// submission is posted per task id.
package outcome

import (
	"context"
	"log/slog"

	"github.com/starbugs-ctf/fireball/internal/defcon"
	"github.com/starbugs-ctf/fireball/internal/task"
)

// Recorder is the subset of the Siren client the gateway reports to.
type Recorder interface {
	ReportStatus(ctx context.Context, taskID int, status, stdout, stderr, statusMessage string) error
	RecordFlag(ctx context.Context, taskID int, flag, message, additionalInfo string) error
}

// FlagSubmitter is the subset of the Defcon client the gateway submits
// flags through.
type FlagSubmitter interface {
	SubmitFlag(ctx context.Context, flag string) (*defcon.FlagResult, error)
}

const (
	resultSkipped = "SKIPPED"

	messageDuplicate    = "DUPLICATE"
	messageWrong        = "WRONG"
	messageUnknownError = "UNKNOWN_ERROR"

	upstreamAlreadySubmitted = "ALREADY_SUBMITTED"
	upstreamIncorrect        = "INCORRECT"
	upstreamServiceInactive  = "SERVICE_INACTIVE"
)

// Gateway records task outcomes, deciding whether the current team's own
// flags should be submitted upstream at all.
type Gateway struct {
	recorder        Recorder
	submitter       FlagSubmitter
	currentTeamSlug string
}

// New returns a Gateway that skips upstream submission for flags belonging
// to currentTeamSlug.
func New(recorder Recorder, submitter FlagSubmitter, currentTeamSlug string) *Gateway {
	return &Gateway{recorder: recorder, submitter: submitter, currentTeamSlug: currentTeamSlug}
}

// ReportStatus pushes a task's latest observed status upstream. Failures
// are logged and non-fatal; the next reconciliation heals state.
func (g *Gateway) ReportStatus(ctx context.Context, t *task.Task, status task.Status, stdout, stderr, statusMessage string) {
	if err := g.recorder.ReportStatus(ctx, t.TaskID, string(status), stdout, stderr, statusMessage); err != nil {
		slog.Warn("outcome: failed to report task status", "task_id", t.TaskID, "status", status, "err", err)
	}
}

// SubmitFlag records a recovered flag. If t.TeamSlug is the current team's
// own, the flag is never sent upstream (that would flag our own service):
// the gateway records SKIPPED and returns true without calling the game
// API. Otherwise it submits upstream, normalizes the response message, and
// records the outcome. Returns false if the upstream call failed or
// returned no response, in which case nothing is recorded.
func (g *Gateway) SubmitFlag(ctx context.Context, t *task.Task, flag string) bool {
	if t.TeamSlug == g.currentTeamSlug {
		if err := g.recorder.RecordFlag(ctx, t.TaskID, flag, resultSkipped, ""); err != nil {
			slog.Warn("outcome: failed to record skipped flag", "task_id", t.TaskID, "err", err)
		}
		return true
	}

	result, err := g.submitter.SubmitFlag(ctx, flag)
	if err != nil {
		slog.Warn("outcome: failed to submit flag upstream", "task_id", t.TaskID, "err", err)
		return false
	}
	if result == nil {
		return false
	}

	message, additionalInfo := normalize(result.Message)
	if err := g.recorder.RecordFlag(ctx, t.TaskID, flag, message, additionalInfo); err != nil {
		slog.Warn("outcome: failed to record flag submission", "task_id", t.TaskID, "err", err)
	}
	return true
}

// normalize maps the upstream game API's message codes onto this system's
// vocabulary.
func normalize(upstream string) (message, additionalInfo string) {
	switch upstream {
	case upstreamAlreadySubmitted:
		return messageDuplicate, ""
	case upstreamIncorrect:
		return messageWrong, ""
	case upstreamServiceInactive:
		return messageUnknownError, "Service is inactive"
	default:
		return upstream, ""
	}
}
