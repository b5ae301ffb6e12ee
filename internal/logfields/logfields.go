package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyJobID      = "job_id"
	KeyJobStatus  = "job_status"
	KeyDatasetID  = "dataset_id"
	KeyDataset    = "dataset"
	KeyRepo       = "repository"
	KeyFile       = "file"
	KeyStage      = "stage"
	KeyState      = "state"
	KeyChannel    = "channel"
	KeyDurationMS = "duration_ms"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func JobID(id string) slog.Attr       { return slog.String(KeyJobID, id) }
func JobStatus(s string) slog.Attr    { return slog.String(KeyJobStatus, s) }
func DatasetID(id string) slog.Attr   { return slog.String(KeyDatasetID, id) }
func Dataset(name string) slog.Attr   { return slog.String(KeyDataset, name) }
func Repository(r string) slog.Attr   { return slog.String(KeyRepo, r) }
func File(name string) slog.Attr      { return slog.String(KeyFile, name) }
func Stage(name string) slog.Attr     { return slog.String(KeyStage, name) }
func State(s string) slog.Attr        { return slog.String(KeyState, s) }
func Channel(c string) slog.Attr      { return slog.String(KeyChannel, c) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
