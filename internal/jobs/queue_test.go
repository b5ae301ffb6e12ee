package jobs

import (
	"context"
	"testing"
	"time"

	"git.home.luguber.info/inful/datapub/internal/config"
	"git.home.luguber.info/inful/datapub/internal/dataset"
	"git.home.luguber.info/inful/datapub/internal/forge"
	"git.home.luguber.info/inful/datapub/internal/retry"
)

func newTestWorker(store *forge.MockStore, datasets Datasets) *Worker {
	return NewWorker(WorkerOptions{
		Datasets:     datasets,
		Store:        store,
		PollPolicy:   retry.NewPolicy(config.RetryBackoffFixed, time.Millisecond, time.Millisecond, 5),
		PollDeadline: time.Second,
	})
}

func TestEnqueueRejectsSecondJobForSameDataset(t *testing.T) {
	q := NewQueue(newTestWorker(forge.NewMockStore(), newMemDatasets()), 10, 1, nil)

	if err := q.Enqueue(&MutationJob{ID: "job-1", DatasetID: "ds-1"}); err != nil {
		t.Fatalf("first enqueue failed: %v", err)
	}

	err := q.Enqueue(&MutationJob{ID: "job-2", DatasetID: "ds-1"})
	if err == nil {
		t.Fatal("expected busy rejection for same dataset")
	}
	if !IsBusy(err) {
		t.Fatalf("expected BusyError, got %T: %v", err, err)
	}
	busy := err.(*BusyError)
	if busy.HeldBy != "job-1" {
		t.Fatalf("expected lease held by job-1, got %s", busy.HeldBy)
	}

	// A different dataset is unaffected.
	if err := q.Enqueue(&MutationJob{ID: "job-3", DatasetID: "ds-2"}); err != nil {
		t.Fatalf("enqueue for other dataset failed: %v", err)
	}
}

func TestEnqueueValidation(t *testing.T) {
	q := NewQueue(newTestWorker(forge.NewMockStore(), newMemDatasets()), 10, 1, nil)

	if err := q.Enqueue(nil); err == nil {
		t.Fatal("expected error for nil job")
	}
	if err := q.Enqueue(&MutationJob{DatasetID: "ds-1"}); err == nil {
		t.Fatal("expected error for missing job ID")
	}
	if err := q.Enqueue(&MutationJob{ID: "job-1"}); err == nil {
		t.Fatal("expected error for missing dataset ID")
	}
}

func TestQueueFullReleasesLease(t *testing.T) {
	q := NewQueue(newTestWorker(forge.NewMockStore(), newMemDatasets()), 1, 1, nil)

	if err := q.Enqueue(&MutationJob{ID: "job-1", DatasetID: "ds-1"}); err != nil {
		t.Fatalf("first enqueue failed: %v", err)
	}
	if err := q.Enqueue(&MutationJob{ID: "job-2", DatasetID: "ds-2"}); err == nil {
		t.Fatal("expected queue full error")
	}

	// The rejected job must not leave ds-2 leased.
	q.mu.RLock()
	_, held := q.leases["ds-2"]
	q.mu.RUnlock()
	if held {
		t.Fatal("queue-full rejection leaked a lease")
	}
}

func TestQueueProcessesJobAndReleasesLease(t *testing.T) {
	store := forge.NewMockStore()
	datasets := newMemDatasets()
	datasets.put(&dataset.Dataset{ID: "ds-1", Name: "Numbers", Owner: "octo-org"})

	q := NewQueue(newTestWorker(store, datasets), 10, 1, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	defer q.Stop()

	job := &MutationJob{
		ID:        "job-1",
		DatasetID: "ds-1",
		FileOps: []dataset.FileSpec{{
			Title:   "Counts",
			Content: []byte("n\n1\n2\n"),
		}},
	}
	if err := q.Enqueue(job); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for len(q.History()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("job did not complete in time")
		}
		time.Sleep(10 * time.Millisecond)
	}

	history := q.History()
	if history[0].Status != JobStatusCompleted {
		t.Fatalf("expected completed job, got %s (%s)", history[0].Status, history[0].Error)
	}
	if files := store.Files("octo-org", "numbers"); files["data/counts.csv"] == nil {
		t.Fatal("expected pushed data file")
	}

	// The lease is released, so a follow-up job for the dataset is admitted.
	if err := q.Enqueue(&MutationJob{ID: "job-2", DatasetID: "ds-1"}); err != nil {
		t.Fatalf("follow-up enqueue failed: %v", err)
	}
}
