// Command fireball runs the exploit execution orchestrator: it watches a
// git repo of exploits, builds their images, schedules runs against every
// team on each round tick, and reconciles container state into the scoring
// backend.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/starbugs-ctf/fireball/internal/catalog"
	"github.com/starbugs-ctf/fireball/internal/config"
	"github.com/starbugs-ctf/fireball/internal/defcon"
	"github.com/starbugs-ctf/fireball/internal/engine"
	"github.com/starbugs-ctf/fireball/internal/logging"
	"github.com/starbugs-ctf/fireball/internal/orchestrator"
	"github.com/starbugs-ctf/fireball/internal/outcome"
	"github.com/starbugs-ctf/fireball/internal/reconciler"
	"github.com/starbugs-ctf/fireball/internal/repo"
	"github.com/starbugs-ctf/fireball/internal/scheduler"
	"github.com/starbugs-ctf/fireball/internal/server"
	"github.com/starbugs-ctf/fireball/internal/siren"
)

// flags mirror the env vars config.Load reads, except the polling interval,
// the running-container cap and FIREBALL_PROD; an explicit flag wins over
// the environment. Required variables must still be set in the environment,
// since config.Load rejects a missing one before the flags are applied.
var flags struct {
	addr       string
	dockerHost string
	sirenURL   string
	gameAPIURL string
	repoPath   string
	repoBranch string
	teamSlug   string
	webhookURL string
	verbose    bool
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fireball",
		Short: "exploit execution orchestrator for attack/defense CTF",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&flags.addr, "addr", ":8080", "admin HTTP server listen address")
	cmd.Flags().StringVar(&flags.dockerHost, "docker-host", "", "Docker Engine API host, overrides FIREBALL_DOCKER_SOCKET")
	cmd.Flags().StringVar(&flags.sirenURL, "siren-url", "", "scoring backend base URL, overrides FIREBALL_SIREN_URL")
	cmd.Flags().StringVar(&flags.gameAPIURL, "game-api-url", "", "upstream flag API base URL, overrides FIREBALL_GAME_API_URL")
	cmd.Flags().StringVar(&flags.repoPath, "repo-path", "", "exploit repo working tree, overrides FIREBALL_REPO_PATH")
	cmd.Flags().StringVar(&flags.repoBranch, "repo-branch", "", "exploit repo branch, overrides FIREBALL_REPO_BRANCH")
	cmd.Flags().StringVar(&flags.teamSlug, "team-slug", "", "this operator's own team slug, overrides FIREBALL_CURRENT_TEAM_SLUG")
	cmd.Flags().StringVar(&flags.webhookURL, "log-webhook-url", "", "chat webhook for warn-level and higher logs, overrides FIREBALL_LOG_WEBHOOK_URL")
	cmd.Flags().BoolVar(&flags.verbose, "verbose", false, "enable debug logging")
	return cmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		slog.Error("fireball: exiting", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	applyFlagOverrides(cfg)

	level := slog.LevelInfo
	if flags.verbose {
		level = slog.LevelDebug
	}
	shutdown := logging.Setup(logging.Options{Level: level, WebhookURL: cfg.LogWebhookURL})
	defer shutdown()

	eng, err := engine.NewDocker(cfg.DockerSocket)
	if err != nil {
		return fmt.Errorf("fireball: connect to docker: %w", err)
	}
	sirenClient := siren.New(cfg.SirenURL)
	defconClient := defcon.New(cfg.GameAPIURL)

	r, err := repo.New(cfg.RepoPath, cfg.RepoBranch)
	if err != nil {
		return fmt.Errorf("fireball: open exploit repo: %w", err)
	}

	cat := catalog.New(sirenClient)
	sched := scheduler.New(eng, sirenClient)
	gw := outcome.New(sirenClient, defconClient, cfg.CurrentTeamSlug)
	rec := &reconciler.Reconciler{
		Engine:       eng,
		Catalog:      cat,
		Outcome:      gw,
		MaxRunning:   cfg.MaxRunningContainers,
		PollInterval: time.Duration(cfg.PollIntervalSeconds) * time.Second,
	}

	orch := orchestrator.New(eng, sirenClient, cat, r, sched, rec, gw)
	if err := orch.Connect(ctx); err != nil {
		return fmt.Errorf("fireball: initial connect: %w", err)
	}
	slog.Info("fireball: connected", "exploits", cat.Len())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		rec.Run(ctx, orch.Lock())
	}()

	srv := server.New(orch)
	err = srv.ListenAndServe(ctx, flags.addr)
	wg.Wait()
	return err
}

func applyFlagOverrides(cfg *config.Config) {
	if flags.dockerHost != "" {
		cfg.DockerSocket = flags.dockerHost
	}
	if flags.sirenURL != "" {
		cfg.SirenURL = flags.sirenURL
	}
	if flags.gameAPIURL != "" {
		cfg.GameAPIURL = flags.gameAPIURL
	}
	if flags.repoPath != "" {
		cfg.RepoPath = flags.repoPath
	}
	if flags.repoBranch != "" {
		cfg.RepoBranch = flags.repoBranch
	}
	if flags.teamSlug != "" {
		cfg.CurrentTeamSlug = flags.teamSlug
	}
	if flags.webhookURL != "" {
		cfg.LogWebhookURL = flags.webhookURL
	}
}
