package metrics

import "time"

// OutcomeLabel enumerates terminal job outcomes for counters.
type OutcomeLabel string

const (
	OutcomeSuccess OutcomeLabel = "success"
	OutcomeFailed  OutcomeLabel = "failed"
	OutcomeBusy    OutcomeLabel = "busy"
)

// Recorder defines observability hooks for publish jobs and pipeline stages.
// Implementations may forward to Prometheus, OpenTelemetry, etc. The
// NoopRecorder allows optional injection.
type Recorder interface {
	ObserveJobDuration(d time.Duration)
	IncJobOutcome(outcome OutcomeLabel)
	IncValidationFailure(kind string) // kind: csv|upload|schema|filename|repository
	ObservePublishStageDuration(stage string, d time.Duration)
	IncBuildPollRetry()
	IncBuildPollExhausted()
	IncCertificateResult(issued bool)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveJobDuration(time.Duration)                  {}
func (NoopRecorder) IncJobOutcome(OutcomeLabel)                        {}
func (NoopRecorder) IncValidationFailure(string)                       {}
func (NoopRecorder) ObservePublishStageDuration(string, time.Duration) {}
func (NoopRecorder) IncBuildPollRetry()                                {}
func (NoopRecorder) IncBuildPollExhausted()                            {}
func (NoopRecorder) IncCertificateResult(bool)                         {}
