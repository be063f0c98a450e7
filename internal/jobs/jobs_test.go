package jobs

import (
	"errors"
	"sync"
	"testing"
)

func TestCreateAssignsUniqueIDs(t *testing.T) {
	t.Parallel()
	tr := NewTracker()

	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := tr.Create(KindGenerate)
		if seen[id] {
			t.Fatalf("duplicate job id %s", id)
		}
		seen[id] = true
	}
}

func TestUpdateUnknownJob(t *testing.T) {
	t.Parallel()
	tr := NewTracker()
	if err := tr.Update("nope", StatusRunning, 10, "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if _, err := tr.Get("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestTerminalFreezesJob(t *testing.T) {
	t.Parallel()
	tr := NewTracker()
	id := tr.Create(KindGenerate)

	if err := tr.Update(id, StatusFailed, 40, "stage exploded"); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := tr.Update(id, StatusCompleted, 100, "done"); !errors.Is(err, ErrTerminal) {
		t.Fatalf("err = %v, want ErrTerminal", err)
	}

	j, err := tr.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if j.Status != StatusFailed || j.Progress != 40 || j.Message != "stage exploded" {
		t.Fatalf("terminal job mutated: %+v", j)
	}
}

func TestStatusNeverMovesBackward(t *testing.T) {
	t.Parallel()
	tr := NewTracker()
	id := tr.Create(KindUpload)

	if err := tr.Update(id, StatusRunning, 50, "uploading"); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := tr.Update(id, StatusPending, 0, "requeued"); !errors.Is(err, ErrBackward) {
		t.Fatalf("err = %v, want ErrBackward", err)
	}
}

func TestProgressClamped(t *testing.T) {
	t.Parallel()
	tr := NewTracker()
	id := tr.Create(KindGenerate)

	if err := tr.Progress(id, 250, "overshoot"); err != nil {
		t.Fatalf("Progress: %v", err)
	}
	j, _ := tr.Get(id)
	if j.Progress != 100 {
		t.Fatalf("Progress = %d, want 100", j.Progress)
	}
}

func TestCancelSetsFlagOnce(t *testing.T) {
	t.Parallel()
	tr := NewTracker()
	id := tr.Create(KindGenerate)

	if tr.CancelRequested(id) {
		t.Fatal("fresh job reports cancel requested")
	}
	if err := tr.Cancel(id); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if !tr.CancelRequested(id) {
		t.Fatal("cancel flag not set")
	}

	// Cancelling a terminal job is a silent no-op.
	if err := tr.Update(id, StatusCancelled, 30, "cancelled"); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := tr.Cancel(id); err != nil {
		t.Fatalf("Cancel on terminal: %v", err)
	}
}

func TestConcurrentUpdates(t *testing.T) {
	t.Parallel()
	tr := NewTracker()
	id := tr.Create(KindGenerate)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_ = tr.Progress(id, n*5, "working")
			_ = tr.CancelRequested(id)
			_, _ = tr.Get(id)
		}(i)
	}
	wg.Wait()

	j, err := tr.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if j.Status != StatusRunning {
		t.Fatalf("Status = %s, want running", j.Status)
	}
}
