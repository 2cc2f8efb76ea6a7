package outcome

import (
	"context"
	"errors"
	"testing"

	"github.com/starbugs-ctf/fireball/internal/defcon"
	"github.com/starbugs-ctf/fireball/internal/task"
)

type fakeRecorder struct {
	statusReports []string
	flagRecords   []flagRecord
	failStatus    bool
	failFlag      bool
}

type flagRecord struct {
	taskID         int
	flag           string
	message        string
	additionalInfo string
}

func (f *fakeRecorder) ReportStatus(ctx context.Context, taskID int, status, stdout, stderr, statusMessage string) error {
	if f.failStatus {
		return errors.New("boom")
	}
	f.statusReports = append(f.statusReports, status)
	return nil
}

func (f *fakeRecorder) RecordFlag(ctx context.Context, taskID int, flag, message, additionalInfo string) error {
	if f.failFlag {
		return errors.New("boom")
	}
	f.flagRecords = append(f.flagRecords, flagRecord{taskID, flag, message, additionalInfo})
	return nil
}

type fakeSubmitter struct {
	result *defcon.FlagResult
	err    error
	calls  int
}

func (f *fakeSubmitter) SubmitFlag(ctx context.Context, flag string) (*defcon.FlagResult, error) {
	f.calls++
	return f.result, f.err
}

func TestSubmitFlagSkipsOwnTeam(t *testing.T) {
	rec := &fakeRecorder{}
	sub := &fakeSubmitter{result: &defcon.FlagResult{Message: "WRONG"}}
	g := New(rec, sub, "blue")

	tk := &task.Task{TaskID: 1, TeamSlug: "blue"}
	ok := g.SubmitFlag(context.Background(), tk, "flag{x}")

	if !ok {
		t.Error("expected true")
	}
	if sub.calls != 0 {
		t.Errorf("expected no upstream call, got %d", sub.calls)
	}
	if len(rec.flagRecords) != 1 || rec.flagRecords[0].message != resultSkipped {
		t.Errorf("flagRecords = %+v", rec.flagRecords)
	}
}

func TestSubmitFlagNormalizesMessages(t *testing.T) {
	cases := []struct {
		upstream       string
		wantMessage    string
		wantAdditional string
	}{
		{"ALREADY_SUBMITTED", messageDuplicate, ""},
		{"INCORRECT", messageWrong, ""},
		{"SERVICE_INACTIVE", messageUnknownError, "Service is inactive"},
		{"CORRECT", "CORRECT", ""},
	}
	for _, c := range cases {
		t.Run(c.upstream, func(t *testing.T) {
			rec := &fakeRecorder{}
			sub := &fakeSubmitter{result: &defcon.FlagResult{Message: c.upstream}}
			g := New(rec, sub, "blue")

			tk := &task.Task{TaskID: 1, TeamSlug: "red"}
			ok := g.SubmitFlag(context.Background(), tk, "flag{x}")
			if !ok {
				t.Fatal("expected true")
			}
			if len(rec.flagRecords) != 1 {
				t.Fatal("expected one flag record")
			}
			got := rec.flagRecords[0]
			if got.message != c.wantMessage || got.additionalInfo != c.wantAdditional {
				t.Errorf("got (%q, %q), want (%q, %q)", got.message, got.additionalInfo, c.wantMessage, c.wantAdditional)
			}
		})
	}
}

func TestSubmitFlagUpstreamErrorNotRecorded(t *testing.T) {
	rec := &fakeRecorder{}
	sub := &fakeSubmitter{err: errors.New("network down")}
	g := New(rec, sub, "blue")

	tk := &task.Task{TaskID: 1, TeamSlug: "red"}
	ok := g.SubmitFlag(context.Background(), tk, "flag{x}")

	if ok {
		t.Error("expected false on upstream error")
	}
	if len(rec.flagRecords) != 0 {
		t.Errorf("expected no recording, got %v", rec.flagRecords)
	}
}

func TestSubmitFlagNilResultNotRecorded(t *testing.T) {
	rec := &fakeRecorder{}
	sub := &fakeSubmitter{result: nil}
	g := New(rec, sub, "blue")

	tk := &task.Task{TaskID: 1, TeamSlug: "red"}
	ok := g.SubmitFlag(context.Background(), tk, "flag{x}")

	if ok {
		t.Error("expected false on nil result")
	}
}

func TestReportStatusLogsOnFailureButDoesNotPanic(t *testing.T) {
	rec := &fakeRecorder{failStatus: true}
	sub := &fakeSubmitter{}
	g := New(rec, sub, "blue")

	tk := &task.Task{TaskID: 1}
	g.ReportStatus(context.Background(), tk, task.StatusRunning, "out", "err", "")
}
