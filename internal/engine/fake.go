package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// Fake is an in-memory Client implementation for tests, in place of a
// mocking framework, matching the teacher's style of hand-written fakes
// (e.g. backend/internal/task's ContainerBackend test doubles).
type Fake struct {
	mu         sync.Mutex
	containers map[string]*fakeContainer
	files      map[string][]byte // "<handle>:<path>" -> content
	seq        atomic.Int64

	BuildImageFunc func(ctx context.Context, dir string) (string, error)
}

type fakeContainer struct {
	state  ContainerState
	labels map[string]string
}

// NewFake returns an empty Fake engine.
func NewFake() *Fake {
	return &Fake{
		containers: make(map[string]*fakeContainer),
		files:      make(map[string][]byte),
	}
}

// SetState sets the inspected state for a container handle, for tests that
// want to drive the reconciler's classification logic.
func (f *Fake) SetState(handle string, state ContainerState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.containers[handle]
	if !ok {
		return
	}
	c.state = state
}

// SetFile stages a file that CopyFileFromContainer will return for handle.
func (f *Fake) SetFile(handle, path string, content []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[handle+":"+path] = content
}

func (f *Fake) BuildImage(ctx context.Context, dir string) (string, error) {
	if f.BuildImageFunc != nil {
		return f.BuildImageFunc(ctx, dir)
	}
	return "fake-image:" + dir, nil
}

func (f *Fake) CreateContainer(ctx context.Context, imageID string, env, labels map[string]string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	handle := fmt.Sprintf("fake-container-%d", f.seq.Add(1))
	f.containers[handle] = &fakeContainer{
		state:  ContainerState{State: "created", Labels: labels},
		labels: labels,
	}
	return handle, nil
}

func (f *Fake) StartContainer(ctx context.Context, handle string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.containers[handle]
	if !ok {
		return fmt.Errorf("fake engine: no such container %s", handle)
	}
	c.state.State = "running"
	return nil
}

func (f *Fake) DeleteContainer(ctx context.Context, handle string, force bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.containers, handle)
	return nil
}

func (f *Fake) InspectContainer(ctx context.Context, handle string) (ContainerState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.containers[handle]
	if !ok {
		return ContainerState{}, fmt.Errorf("fake engine: no such container %s", handle)
	}
	return c.state, nil
}

func (f *Fake) ContainerLogs(ctx context.Context, handle string) (string, string, error) {
	return "", "", nil
}

func (f *Fake) CopyFileFromContainer(ctx context.Context, handle, path string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	content, ok := f.files[handle+":"+path]
	if !ok {
		return nil, ErrNotFound
	}
	return content, nil
}

func (f *Fake) ListManagedContainers(ctx context.Context) ([]ContainerSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	summaries := make([]ContainerSummary, 0, len(f.containers))
	for handle, c := range f.containers {
		if c.labels[LabelManaged] != "true" {
			continue
		}
		summaries = append(summaries, ContainerSummary{Handle: handle, Labels: c.labels})
	}
	return summaries, nil
}

var _ Client = (*Fake)(nil)
