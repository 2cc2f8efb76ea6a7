package engine

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/google/uuid"
	"github.com/moby/patternmatcher"
	"github.com/moby/patternmatcher/ignorefile"
)

// Docker implements Client over the Docker Engine API.
type Docker struct {
	cli *client.Client
}

// NewDocker connects to the engine at host (e.g. "unix:///var/run/docker.sock").
func NewDocker(host string) (*Docker, error) {
	cli, err := client.NewClientWithOpts(
		client.WithHost(host),
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("engine: connect: %w", err)
	}
	return &Docker{cli: cli}, nil
}

// buildImageResponse is the tail of the engine's build JSON-stream output
// that carries the final content-addressed image id.
type buildImageResponse struct {
	Stream string `json:"stream"`
	Aux    *struct {
		ID string `json:"ID"`
	} `json:"aux"`
	Error string `json:"error"`
}

// BuildImage tars dir, honoring .dockerignore, and streams it to the
// engine's build endpoint.
func (d *Docker) BuildImage(ctx context.Context, dir string) (string, error) {
	tarball, err := tarDirectory(dir)
	if err != nil {
		return "", fmt.Errorf("engine: build %s: %w", dir, err)
	}
	resp, err := d.cli.ImageBuild(ctx, tarball, types.ImageBuildOptions{
		Dockerfile: "Dockerfile",
		Remove:     true,
	})
	if err != nil {
		return "", fmt.Errorf("engine: build %s: %w", dir, err)
	}
	defer resp.Body.Close()

	var imageID string
	dec := json.NewDecoder(resp.Body)
	for {
		var line buildImageResponse
		if err := dec.Decode(&line); err != nil {
			if err == io.EOF {
				break
			}
			return "", fmt.Errorf("engine: build %s: decode build log: %w", dir, err)
		}
		if line.Error != "" {
			return "", fmt.Errorf("engine: build %s: %s", dir, line.Error)
		}
		if line.Aux != nil && line.Aux.ID != "" {
			imageID = line.Aux.ID
		}
	}
	if imageID == "" {
		return "", fmt.Errorf("engine: build %s: no image id in build log", dir)
	}
	return imageID, nil
}

// CreateContainer creates (does not start) a container from imageID.
func (d *Docker) CreateContainer(ctx context.Context, imageID string, env, labels map[string]string) (string, error) {
	envList := make([]string, 0, len(env))
	for k, v := range env {
		envList = append(envList, k+"="+v)
	}
	name := "fireball-" + uuid.NewString()
	resp, err := d.cli.ContainerCreate(ctx,
		&container.Config{
			Image:  imageID,
			Env:    envList,
			Labels: labels,
		},
		&container.HostConfig{
			AutoRemove: false,
		},
		nil, nil, name,
	)
	if err != nil {
		return "", fmt.Errorf("engine: create container from %s: %w", imageID, err)
	}
	return resp.ID, nil
}

// StartContainer starts a previously created container.
func (d *Docker) StartContainer(ctx context.Context, handle string) error {
	if err := d.cli.ContainerStart(ctx, handle, container.StartOptions{}); err != nil {
		return fmt.Errorf("engine: start %s: %w", handle, err)
	}
	return nil
}

// DeleteContainer removes a container.
func (d *Docker) DeleteContainer(ctx context.Context, handle string, force bool) error {
	err := d.cli.ContainerRemove(ctx, handle, container.RemoveOptions{Force: force})
	if err != nil && !client.IsErrNotFound(err) {
		return fmt.Errorf("engine: delete %s: %w", handle, err)
	}
	return nil
}

// InspectContainer returns the current state of a container.
func (d *Docker) InspectContainer(ctx context.Context, handle string) (ContainerState, error) {
	info, err := d.cli.ContainerInspect(ctx, handle)
	if err != nil {
		return ContainerState{}, fmt.Errorf("engine: inspect %s: %w", handle, err)
	}
	state := ContainerState{
		Labels: info.Config.Labels,
	}
	if info.State != nil {
		state.State = info.State.Status
		state.ExitCode = info.State.ExitCode
		if t, err := time.Parse(time.RFC3339Nano, info.State.StartedAt); err == nil {
			state.StartedAt = t
		}
	}
	return state, nil
}

// ContainerLogs returns the stdout/stderr of a container, demultiplexed from
// the engine's combined log stream.
func (d *Docker) ContainerLogs(ctx context.Context, handle string) (string, string, error) {
	reader, err := d.cli.ContainerLogs(ctx, handle, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return "", "", fmt.Errorf("engine: logs %s: %w", handle, err)
	}
	defer reader.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, reader); err != nil {
		return "", "", fmt.Errorf("engine: logs %s: demultiplex: %w", handle, err)
	}
	return stdout.String(), stderr.String(), nil
}

// CopyFileFromContainer extracts a single file from a container's archive.
func (d *Docker) CopyFileFromContainer(ctx context.Context, handle, path string) ([]byte, error) {
	reader, _, err := d.cli.CopyFromContainer(ctx, handle, path)
	if err != nil {
		if client.IsErrNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("engine: copy %s from %s: %w", path, handle, err)
	}
	defer reader.Close()

	tr := tar.NewReader(reader)
	hdr, err := tr.Next()
	if err == io.EOF {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("engine: copy %s from %s: read archive: %w", path, handle, err)
	}
	if hdr.Typeflag == tar.TypeDir {
		return nil, ErrNotFound
	}
	content, err := io.ReadAll(tr)
	if err != nil {
		return nil, fmt.Errorf("engine: copy %s from %s: %w", path, handle, err)
	}
	return content, nil
}

// ListManagedContainers lists every container carrying the managed label,
// across all states.
func (d *Docker) ListManagedContainers(ctx context.Context) ([]ContainerSummary, error) {
	f := filters.NewArgs(filters.Arg("label", LabelManaged+"=true"))
	list, err := d.cli.ContainerList(ctx, container.ListOptions{All: true, Filters: f})
	if err != nil {
		return nil, fmt.Errorf("engine: list managed containers: %w", err)
	}
	summaries := make([]ContainerSummary, 0, len(list))
	for _, c := range list {
		summaries = append(summaries, ContainerSummary{Handle: c.ID, Labels: c.Labels})
	}
	return summaries, nil
}

// tarDirectory builds a tar stream of dir, skipping paths matched by
// .dockerignore (if present), for use as a build context.
func tarDirectory(dir string) (io.Reader, error) {
	var patterns []string
	if f, err := os.Open(filepath.Join(dir, ".dockerignore")); err == nil {
		patterns, err = ignorefile.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("parse .dockerignore: %w", err)
		}
	}
	matcher, err := patternmatcher.New(patterns)
	if err != nil {
		return nil, fmt.Errorf("compile .dockerignore: %w", err)
	}

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	err = filepath.WalkDir(dir, func(path string, d2 os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil || rel == "." {
			return err
		}
		rel = filepath.ToSlash(rel)
		matched, err := matcher.MatchesOrParentMatches(rel)
		if err != nil {
			return err
		}
		if matched {
			if d2.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		info, err := d2.Info()
		if err != nil {
			return err
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = rel
		if d2.IsDir() {
			hdr.Name += "/"
			return tw.WriteHeader(hdr)
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		_, err = tw.Write(content)
		return err
	})
	if err != nil {
		return nil, err
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	return &buf, nil
}
