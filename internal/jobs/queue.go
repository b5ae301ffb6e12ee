package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"git.home.luguber.info/inful/datapub/internal/logfields"
	"git.home.luguber.info/inful/datapub/internal/metrics"
)

// BusyError rejects a job whose dataset is already leased by another job.
// The caller may resubmit once the running job finishes.
type BusyError struct {
	DatasetID string
	HeldBy    string
}

func (e *BusyError) Error() string {
	return fmt.Sprintf("dataset %s is busy (job %s)", e.DatasetID, e.HeldBy)
}

// IsBusy returns true if the error is a BusyError.
func IsBusy(err error) bool {
	_, ok := err.(*BusyError)
	return ok
}

// Queue runs mutation jobs on a bounded worker pool. A per-dataset lease,
// taken at enqueue and held until the job completes, keeps two jobs for the
// same dataset from ever interleaving their remote pushes.
type Queue struct {
	jobs        chan *MutationJob
	workers     int
	maxSize     int
	mu          sync.RWMutex
	leases      map[string]string // dataset id -> holding job id
	active      map[string]*MutationJob
	history     []*MutationJob
	historySize int
	stopChan    chan struct{}
	wg          sync.WaitGroup

	worker   *Worker
	recorder metrics.Recorder
}

// NewQueue creates a queue backed by the given worker.
func NewQueue(worker *Worker, maxSize, workers int, recorder metrics.Recorder) *Queue {
	if maxSize <= 0 {
		maxSize = 100
	}
	if workers <= 0 {
		workers = 2
	}
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}

	return &Queue{
		jobs:        make(chan *MutationJob, maxSize),
		workers:     workers,
		maxSize:     maxSize,
		leases:      make(map[string]string),
		active:      make(map[string]*MutationJob),
		history:     make([]*MutationJob, 0),
		historySize: 50,
		stopChan:    make(chan struct{}),
		worker:      worker,
		recorder:    recorder,
	}
}

// Start begins processing jobs with the configured number of workers.
func (q *Queue) Start(ctx context.Context) {
	slog.Info("Starting mutation queue", "workers", q.workers, "max_size", q.maxSize)

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.run(ctx, fmt.Sprintf("worker-%d", i))
	}
}

// Stop gracefully shuts down the queue, waiting for running jobs.
func (q *Queue) Stop() {
	slog.Info("Stopping mutation queue")
	close(q.stopChan)
	q.wg.Wait()
	slog.Info("Mutation queue stopped")
}

// Enqueue admits a job. A job for a dataset that is already queued or
// running is rejected with a BusyError rather than queued behind it.
func (q *Queue) Enqueue(job *MutationJob) error {
	if job == nil {
		return fmt.Errorf("job cannot be nil")
	}
	if job.ID == "" {
		return fmt.Errorf("job ID is required")
	}
	if job.DatasetID == "" {
		return fmt.Errorf("job dataset ID is required")
	}

	q.mu.Lock()
	if holder, held := q.leases[job.DatasetID]; held {
		q.mu.Unlock()
		q.recorder.IncJobOutcome(metrics.OutcomeBusy)
		return &BusyError{DatasetID: job.DatasetID, HeldBy: holder}
	}
	q.leases[job.DatasetID] = job.ID
	q.mu.Unlock()

	job.Status = JobStatusQueued
	job.CreatedAt = time.Now()

	select {
	case q.jobs <- job:
		slog.Info("Mutation job enqueued",
			logfields.JobID(job.ID), logfields.DatasetID(job.DatasetID))
		return nil
	default:
		q.releaseLease(job)
		return fmt.Errorf("mutation queue is full")
	}
}

// Length returns the current queue length.
func (q *Queue) Length() int {
	return len(q.jobs)
}

// ActiveJobs returns a copy of currently running jobs.
func (q *Queue) ActiveJobs() []*MutationJob {
	q.mu.RLock()
	defer q.mu.RUnlock()

	active := make([]*MutationJob, 0, len(q.active))
	for _, job := range q.active {
		active = append(active, job)
	}
	return active
}

// History returns recently completed jobs.
func (q *Queue) History() []*MutationJob {
	q.mu.RLock()
	defer q.mu.RUnlock()

	history := make([]*MutationJob, len(q.history))
	copy(history, q.history)
	return history
}

func (q *Queue) run(ctx context.Context, workerID string) {
	defer q.wg.Done()

	slog.Debug("Mutation worker started", "worker_id", workerID)

	for {
		select {
		case <-ctx.Done():
			slog.Debug("Mutation worker stopped by context", "worker_id", workerID)
			return
		case <-q.stopChan:
			slog.Debug("Mutation worker stopped by stop signal", "worker_id", workerID)
			return
		case job := <-q.jobs:
			if job != nil {
				q.processJob(ctx, job, workerID)
			}
		}
	}
}

func (q *Queue) processJob(ctx context.Context, job *MutationJob, workerID string) {
	startTime := time.Now()
	job.StartedAt = &startTime
	job.Status = JobStatusRunning

	q.mu.Lock()
	q.active[job.ID] = job
	q.mu.Unlock()

	slog.Info("Mutation job started",
		logfields.JobID(job.ID), logfields.DatasetID(job.DatasetID),
		slog.String("worker", workerID))

	err := q.worker.Apply(ctx, job)

	endTime := time.Now()
	job.CompletedAt = &endTime
	job.Duration = endTime.Sub(*job.StartedAt)

	q.mu.Lock()
	delete(q.active, job.ID)
	q.addToHistory(job)
	q.mu.Unlock()
	q.releaseLease(job)

	q.recorder.ObserveJobDuration(job.Duration)
	if err != nil {
		job.Status = JobStatusFailed
		job.Error = err.Error()
		q.recorder.IncJobOutcome(metrics.OutcomeFailed)
		slog.Error("Mutation job failed",
			logfields.JobID(job.ID),
			logfields.DurationMS(float64(job.Duration.Milliseconds())),
			logfields.Error(err))
	} else {
		job.Status = JobStatusCompleted
		q.recorder.IncJobOutcome(metrics.OutcomeSuccess)
		slog.Info("Mutation job completed",
			logfields.JobID(job.ID),
			logfields.DurationMS(float64(job.Duration.Milliseconds())))
	}
}

// releaseLease frees the dataset for the next job, but only if this job
// still holds it.
func (q *Queue) releaseLease(job *MutationJob) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.leases[job.DatasetID] == job.ID {
		delete(q.leases, job.DatasetID)
	}
}

func (q *Queue) addToHistory(job *MutationJob) {
	q.history = append(q.history, job)
	if len(q.history) > q.historySize {
		copy(q.history, q.history[len(q.history)-q.historySize:])
		q.history = q.history[:q.historySize]
	}
}
