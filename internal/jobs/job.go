// Package jobs runs dataset mutation jobs on a bounded worker pool with
// per-dataset mutual exclusion.
package jobs

import (
	"context"
	"time"

	"git.home.luguber.info/inful/datapub/internal/dataset"
)

// JobStatus is the queue-visible state of a mutation job.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// MutationJob is one batch mutation of a dataset: attribute changes plus an
// ordered list of file operations, followed by publication.
type MutationJob struct {
	ID        string                   `json:"id"`
	DatasetID string                   `json:"dataset_id"`
	UserID    string                   `json:"user_id"`
	Changes   dataset.AttributeChanges `json:"changes"`

	// FileOps apply strictly in order. An op with a file id updates that
	// file, or removes it when the remove flag is set; an op without one
	// adds a new file.
	FileOps []dataset.FileSpec `json:"file_ops,omitempty"`

	// Channel is the optional notification channel for the terminal
	// report. Empty means failures are persisted instead.
	Channel string `json:"channel,omitempty"`

	Status      JobStatus     `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	StartedAt   *time.Time    `json:"started_at,omitempty"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	Duration    time.Duration `json:"duration,omitempty"`
	Error       string        `json:"error,omitempty"`
}

// Datasets is the persistence boundary for dataset state.
type Datasets interface {
	Get(ctx context.Context, id string) (*dataset.Dataset, error)
	Save(ctx context.Context, ds *dataset.Dataset) error
}

// Notifier delivers terminal job reports to a named channel.
type Notifier interface {
	DatasetCreated(ctx context.Context, channel string, ds *dataset.Dataset) error
	DatasetFailed(ctx context.Context, channel string, messages []string) error
}

// ErrorRecorder persists failure messages keyed by job id, for jobs that
// carry no notification channel.
type ErrorRecorder interface {
	RecordError(ctx context.Context, jobID string, messages []string) error
}

// messageSet collects failure messages, deduplicated, in first-seen order.
type messageSet struct {
	seen     map[string]struct{}
	messages []string
}

func newMessageSet() *messageSet {
	return &messageSet{seen: make(map[string]struct{})}
}

func (m *messageSet) add(msg string) {
	if msg == "" {
		return
	}
	if _, ok := m.seen[msg]; ok {
		return
	}
	m.seen[msg] = struct{}{}
	m.messages = append(m.messages, msg)
}

func (m *messageSet) empty() bool { return len(m.messages) == 0 }
