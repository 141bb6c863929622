package jobs

import (
	"io"
	"testing"
	"time"

	"cme/internal/logging"
)

func testLogger() *logging.Logger {
	return logging.NewLogger(logging.Config{
		Output: io.Discard,
		Format: logging.HumanFormat,
		Level:  logging.ErrorLevel,
	})
}

func testStore(t *testing.T) (*Store, string) {
	t.Helper()
	root := t.TempDir()
	store, err := OpenStore(root, testLogger())
	if err != nil {
		t.Fatalf("OpenStore failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store, root
}

func TestStoreRoundTrip(t *testing.T) {
	store, _ := testStore(t)

	job := NewJob("echo hello", "/tmp", 120)
	job.LogPath = "/tmp/x.log"
	if err := store.CreateJob(job); err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}

	got, err := store.GetJob(job.ID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if got == nil {
		t.Fatal("GetJob returned nil for an existing job")
	}
	if got.Command != "echo hello" || got.Dir != "/tmp" || got.TimeoutSecs != 120 {
		t.Errorf("round trip lost fields: %+v", got)
	}
	if got.Status != StatusPending {
		t.Errorf("Status = %v, want %v", got.Status, StatusPending)
	}
	if got.ExitCode != nil {
		t.Errorf("ExitCode = %v, want nil", got.ExitCode)
	}

	job.MarkStarted(321)
	job.MarkExited(0)
	if err := store.UpdateJob(job); err != nil {
		t.Fatalf("UpdateJob failed: %v", err)
	}

	got, err = store.GetJob(job.ID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if got.Status != StatusSucceeded {
		t.Errorf("Status = %v, want %v", got.Status, StatusSucceeded)
	}
	if got.PID != 321 {
		t.Errorf("PID = %d, want 321", got.PID)
	}
	if got.ExitCode == nil || *got.ExitCode != 0 {
		t.Errorf("ExitCode = %v, want 0", got.ExitCode)
	}
	if got.StartedAt == nil || got.FinishedAt == nil {
		t.Error("timestamps lost in round trip")
	}
}

func TestStoreGetMissing(t *testing.T) {
	store, _ := testStore(t)

	got, err := store.GetJob("no-such-id")
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if got != nil {
		t.Errorf("GetJob = %+v, want nil", got)
	}
}

func TestStoreUpdateMissing(t *testing.T) {
	store, _ := testStore(t)

	job := NewJob("true", "", 60)
	if err := store.UpdateJob(job); err == nil {
		t.Error("UpdateJob of a missing record should fail")
	}
}

func TestStoreMarkOrphans(t *testing.T) {
	store, _ := testStore(t)

	pending := NewJob("sleep 10", "", 60)
	running := NewJob("sleep 10", "", 60)
	running.MarkStarted(100)
	finished := NewJob("true", "", 60)
	finished.MarkStarted(101)
	finished.MarkExited(0)

	for _, job := range []*Job{pending, running, finished} {
		if err := store.CreateJob(job); err != nil {
			t.Fatalf("CreateJob failed: %v", err)
		}
	}

	n, err := store.MarkOrphans()
	if err != nil {
		t.Fatalf("MarkOrphans failed: %v", err)
	}
	if n != 2 {
		t.Errorf("MarkOrphans = %d, want 2", n)
	}

	for _, id := range []string{pending.ID, running.ID} {
		got, err := store.GetJob(id)
		if err != nil {
			t.Fatalf("GetJob failed: %v", err)
		}
		if got.Status != StatusFailed {
			t.Errorf("orphan status = %v, want %v", got.Status, StatusFailed)
		}
		if got.Error != "orphaned by restart" {
			t.Errorf("orphan error = %q", got.Error)
		}
		if got.FinishedAt == nil {
			t.Error("orphan should carry a finish time")
		}
	}

	got, err := store.GetJob(finished.ID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if got.Status != StatusSucceeded {
		t.Errorf("terminal job touched by orphan sweep: %v", got.Status)
	}
}

func TestStoreListJobs(t *testing.T) {
	store, _ := testStore(t)

	base := time.Now().UTC().Add(-time.Hour)
	var ids []string
	for i := 0; i < 3; i++ {
		job := NewJob("true", "", 60)
		job.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if i == 1 {
			job.MarkStarted(1)
			job.MarkExited(2)
		}
		if err := store.CreateJob(job); err != nil {
			t.Fatalf("CreateJob failed: %v", err)
		}
		ids = append(ids, job.ID)
	}

	all, err := store.ListJobs(ListOptions{})
	if err != nil {
		t.Fatalf("ListJobs failed: %v", err)
	}
	if all.TotalCount != 3 || len(all.Jobs) != 3 {
		t.Fatalf("ListJobs = %d/%d, want 3/3", len(all.Jobs), all.TotalCount)
	}
	if all.Jobs[0].ID != ids[2] || all.Jobs[2].ID != ids[0] {
		t.Error("ListJobs should order newest first")
	}

	failed, err := store.ListJobs(ListOptions{Status: []Status{StatusFailed}})
	if err != nil {
		t.Fatalf("ListJobs failed: %v", err)
	}
	if failed.TotalCount != 1 || len(failed.Jobs) != 1 || failed.Jobs[0].ID != ids[1] {
		t.Errorf("filtered ListJobs = %+v", failed)
	}

	limited, err := store.ListJobs(ListOptions{Limit: 2})
	if err != nil {
		t.Fatalf("ListJobs failed: %v", err)
	}
	if len(limited.Jobs) != 2 || limited.TotalCount != 3 {
		t.Errorf("limited ListJobs = %d/%d, want 2/3", len(limited.Jobs), limited.TotalCount)
	}
}

func TestStoreTerminalQueries(t *testing.T) {
	store, _ := testStore(t)

	mkTerminal := func(finished time.Time) *Job {
		job := NewJob("true", "", 60)
		job.MarkStarted(1)
		job.MarkExited(0)
		job.FinishedAt = &finished
		if err := store.CreateJob(job); err != nil {
			t.Fatalf("CreateJob failed: %v", err)
		}
		return job
	}

	now := time.Now().UTC()
	old := mkTerminal(now.Add(-48 * time.Hour))
	recent := mkTerminal(now.Add(-time.Hour))

	live := NewJob("sleep 10", "", 60)
	live.MarkStarted(2)
	if err := store.CreateJob(live); err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}

	count, err := store.TerminalCount()
	if err != nil {
		t.Fatalf("TerminalCount failed: %v", err)
	}
	if count != 2 {
		t.Errorf("TerminalCount = %d, want 2", count)
	}

	expired, err := store.TerminalBefore(now.Add(-24 * time.Hour))
	if err != nil {
		t.Fatalf("TerminalBefore failed: %v", err)
	}
	if len(expired) != 1 || expired[0].ID != old.ID {
		t.Errorf("TerminalBefore = %+v", expired)
	}

	oldest, err := store.OldestTerminal(1)
	if err != nil {
		t.Fatalf("OldestTerminal failed: %v", err)
	}
	if len(oldest) != 1 || oldest[0].ID != old.ID {
		t.Errorf("OldestTerminal = %+v", oldest)
	}
	_ = recent

	if err := store.DeleteJob(old.ID); err != nil {
		t.Fatalf("DeleteJob failed: %v", err)
	}
	got, err := store.GetJob(old.ID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if got != nil {
		t.Error("deleted job still present")
	}
}

func TestStoreReopen(t *testing.T) {
	store, root := testStore(t)

	job := NewJob("true", "", 60)
	job.MarkStarted(1)
	job.MarkExited(0)
	if err := store.CreateJob(job); err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := OpenStore(root, testLogger())
	if err != nil {
		t.Fatalf("OpenStore failed: %v", err)
	}
	defer func() { _ = reopened.Close() }()

	got, err := reopened.GetJob(job.ID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if got == nil || got.Status != StatusSucceeded {
		t.Errorf("record lost across reopen: %+v", got)
	}
	if got != nil && got.Command != "true" {
		t.Errorf("Command = %q", got.Command)
	}
}
