package engine

import (
	"context"
	"testing"
)

func TestFakeLifecycle(t *testing.T) {
	ctx := context.Background()
	f := NewFake()

	imageID, err := f.BuildImage(ctx, "/exploits/high/ground")
	if err != nil {
		t.Fatal(err)
	}

	labels := map[string]string{LabelManaged: "true", LabelExploitID: "high:ground"}
	handle, err := f.CreateContainer(ctx, imageID, map[string]string{"HOST": "10.0.0.1"}, labels)
	if err != nil {
		t.Fatal(err)
	}

	state, err := f.InspectContainer(ctx, handle)
	if err != nil {
		t.Fatal(err)
	}
	if state.State != "created" {
		t.Errorf("state = %q, want created", state.State)
	}

	if err := f.StartContainer(ctx, handle); err != nil {
		t.Fatal(err)
	}
	state, err = f.InspectContainer(ctx, handle)
	if err != nil {
		t.Fatal(err)
	}
	if state.State != "running" {
		t.Errorf("state = %q, want running", state.State)
	}

	list, err := f.ListManagedContainers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].Handle != handle {
		t.Errorf("ListManagedContainers = %+v, want [%s]", list, handle)
	}

	if err := f.DeleteContainer(ctx, handle, false); err != nil {
		t.Fatal(err)
	}
	if _, err := f.InspectContainer(ctx, handle); err == nil {
		t.Error("expected error inspecting deleted container")
	}
}

func TestFakeCopyFileFromContainerNotFound(t *testing.T) {
	ctx := context.Background()
	f := NewFake()
	handle, _ := f.CreateContainer(ctx, "img", nil, nil)

	if _, err := f.CopyFileFromContainer(ctx, handle, "/tmp/flag"); err != ErrNotFound {
		t.Errorf("err = %v, want ErrNotFound", err)
	}

	f.SetFile(handle, "/tmp/flag", []byte("flag{test}"))
	content, err := f.CopyFileFromContainer(ctx, handle, "/tmp/flag")
	if err != nil {
		t.Fatal(err)
	}
	if string(content) != "flag{test}" {
		t.Errorf("content = %q", content)
	}
}
