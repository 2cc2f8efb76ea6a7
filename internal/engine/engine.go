// Package engine abstracts the container engine operations the orchestrator
// needs: building exploit images, and driving containers through
// create/start/inspect/delete, mirroring the shape of the teacher's
// internal/container.Ops abstraction but backed by the Docker Engine API
// instead of a CLI wrapper.
package engine

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by CopyFileFromContainer when the requested path
// does not exist in the container's filesystem.
var ErrNotFound = errors.New("engine: path not found in container")

// ManagedLabel is the label every container created by this system carries,
// and the filter key ListManagedContainers uses to discover them.
const ManagedLabel = "fireball.managed"

// Label keys embedded on every managed container.
const (
	LabelManaged   = "fireball.managed"
	LabelExploitID = "fireball.exploit_id"
	LabelTaskID    = "fireball.task_id"
	LabelTeamSlug  = "fireball.team_slug"
)

// ContainerState is the result of inspecting a container.
type ContainerState struct {
	State     string // "created", "running", "exited", "paused", "restarting", "removing", "dead"
	ExitCode  int
	StartedAt time.Time
	Labels    map[string]string
}

// ContainerSummary is one entry from a label-filtered container list.
type ContainerSummary struct {
	Handle string
	Labels map[string]string
}

// Client abstracts the container engine. The concrete implementation talks
// to the Docker Engine API; tests use a fake.
type Client interface {
	// BuildImage tars dir (honoring .dockerignore) and builds an image from
	// it, returning the engine-assigned content-addressed image id.
	BuildImage(ctx context.Context, dir string) (imageID string, err error)

	// CreateContainer creates (but does not start) a container from imageID
	// with the given environment and labels, returning an opaque handle.
	CreateContainer(ctx context.Context, imageID string, env, labels map[string]string) (handle string, err error)

	// StartContainer starts a previously created container.
	StartContainer(ctx context.Context, handle string) error

	// DeleteContainer removes a container, forcing removal of a running one
	// when force is true.
	DeleteContainer(ctx context.Context, handle string, force bool) error

	// InspectContainer returns the current state of a container.
	InspectContainer(ctx context.Context, handle string) (ContainerState, error)

	// ContainerLogs returns the stdout/stderr of a container.
	ContainerLogs(ctx context.Context, handle string) (stdout, stderr string, err error)

	// CopyFileFromContainer returns the contents of a single file from the
	// container's filesystem, or ErrNotFound if path does not exist.
	CopyFileFromContainer(ctx context.Context, handle, path string) ([]byte, error)

	// ListManagedContainers lists every container carrying the managed
	// label, across all states.
	ListManagedContainers(ctx context.Context) ([]ContainerSummary, error)
}
