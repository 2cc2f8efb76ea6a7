// Package config loads the process-wide, closed configuration record from
// the environment. There is no dynamic reload: the record is read once at
// startup and handed to every other package by value or pointer.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config is the full configuration surface. No other knobs exist.
type Config struct {
	DockerSocket         string // FIREBALL_DOCKER_SOCKET, e.g. "unix:///var/run/docker.sock"
	SirenURL             string // FIREBALL_SIREN_URL
	GameAPIURL           string // FIREBALL_GAME_API_URL; empty disables flag submission
	RepoPath             string // FIREBALL_REPO_PATH
	RepoBranch           string // FIREBALL_REPO_BRANCH
	PollIntervalSeconds  int    // FIREBALL_DOCKER_POLLING_INTERVAL
	MaxRunningContainers int    // FIREBALL_DOCKER_MAX_CONTAINERS_RUNNING
	CurrentTeamSlug      string // FIREBALL_CURRENT_TEAM_SLUG
	LogWebhookURL        string // FIREBALL_LOG_WEBHOOK_URL; empty disables the webhook sink
	ProdMode             bool   // FIREBALL_PROD
}

// Load reads Config from the environment, applying defaults for optional
// fields and returning an error naming every missing required field.
func Load() (*Config, error) {
	c := &Config{
		DockerSocket:         getenvDefault("FIREBALL_DOCKER_SOCKET", "unix:///var/run/docker.sock"),
		SirenURL:             os.Getenv("FIREBALL_SIREN_URL"),
		GameAPIURL:           os.Getenv("FIREBALL_GAME_API_URL"),
		RepoPath:             os.Getenv("FIREBALL_REPO_PATH"),
		RepoBranch:           getenvDefault("FIREBALL_REPO_BRANCH", "origin/main"),
		CurrentTeamSlug:      os.Getenv("FIREBALL_CURRENT_TEAM_SLUG"),
		LogWebhookURL:        os.Getenv("FIREBALL_LOG_WEBHOOK_URL"),
		ProdMode:             os.Getenv("FIREBALL_PROD") != "",
		PollIntervalSeconds:  10,
		MaxRunningContainers: 30,
	}

	var missing []string
	if c.SirenURL == "" {
		missing = append(missing, "FIREBALL_SIREN_URL")
	}
	if c.RepoPath == "" {
		missing = append(missing, "FIREBALL_REPO_PATH")
	}
	if c.CurrentTeamSlug == "" {
		missing = append(missing, "FIREBALL_CURRENT_TEAM_SLUG")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("config: missing required environment variables: %v", missing)
	}

	if v := os.Getenv("FIREBALL_DOCKER_POLLING_INTERVAL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("config: FIREBALL_DOCKER_POLLING_INTERVAL must be a positive integer, got %q", v)
		}
		c.PollIntervalSeconds = n
	}
	if v := os.Getenv("FIREBALL_DOCKER_MAX_CONTAINERS_RUNNING"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("config: FIREBALL_DOCKER_MAX_CONTAINERS_RUNNING must be a positive integer, got %q", v)
		}
		c.MaxRunningContainers = n
	}

	return c, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
