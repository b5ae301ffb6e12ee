package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/datapub/internal/dataset"
	"git.home.luguber.info/inful/datapub/internal/errors"
	"git.home.luguber.info/inful/datapub/internal/forge"
	"git.home.luguber.info/inful/datapub/internal/logfields"
	"git.home.luguber.info/inful/datapub/internal/metrics"
	"git.home.luguber.info/inful/datapub/internal/publish"
	"git.home.luguber.info/inful/datapub/internal/retry"
	"git.home.luguber.info/inful/datapub/internal/tableschema"
	"git.home.luguber.info/inful/datapub/internal/validate"
)

// Worker executes mutation jobs. One Worker is shared by all pool workers;
// per-job state lives on the synchronizer created for each job.
type Worker struct {
	datasets Datasets
	store    forge.Store
	resolver *tableschema.Resolver
	schemas  *dataset.SchemaRegistry
	issuer   publish.CertificateIssuer
	pending  *publish.PendingRegistry
	notifier Notifier
	errstore ErrorRecorder
	recorder metrics.Recorder
	log      *slog.Logger

	pollPolicy   retry.Policy
	pollDeadline time.Duration
}

// WorkerOptions carries the collaborators a Worker needs.
type WorkerOptions struct {
	Datasets Datasets
	Store    forge.Store
	Resolver *tableschema.Resolver
	Schemas  *dataset.SchemaRegistry
	Issuer   publish.CertificateIssuer
	Pending  *publish.PendingRegistry
	Notifier Notifier
	Errors   ErrorRecorder
	Recorder metrics.Recorder
	Logger   *slog.Logger

	PollPolicy   retry.Policy
	PollDeadline time.Duration
}

// NewWorker builds a job worker.
func NewWorker(opts WorkerOptions) *Worker {
	if opts.Recorder == nil {
		opts.Recorder = metrics.NoopRecorder{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Schemas == nil {
		opts.Schemas = dataset.NewSchemaRegistry()
	}
	return &Worker{
		datasets:     opts.Datasets,
		store:        opts.Store,
		resolver:     opts.Resolver,
		schemas:      opts.Schemas,
		issuer:       opts.Issuer,
		pending:      opts.Pending,
		notifier:     opts.Notifier,
		errstore:     opts.Errors,
		recorder:     opts.Recorder,
		log:          opts.Logger,
		pollPolicy:   opts.PollPolicy,
		pollDeadline: opts.PollDeadline,
	}
}

// Apply runs one mutation job to completion and reports its terminal status
// exactly once. The returned error mirrors what was reported.
func (w *Worker) Apply(ctx context.Context, job *MutationJob) error {
	log := w.log.With(logfields.JobID(job.ID), logfields.DatasetID(job.DatasetID))

	ds, err := w.datasets.Get(ctx, job.DatasetID)
	if err != nil {
		// A job naming an unknown dataset is malformed; abort and record.
		msg := fmt.Sprintf("dataset %s could not be loaded: %v", job.DatasetID, err)
		w.report(ctx, job, nil, []string{msg})
		return errors.Wrap(err, errors.CategoryInternal, errors.SeverityFatal,
			"loading dataset")
	}

	sync := publish.NewSynchronizer(w.store, w.resolver, ds, log)
	if err := sync.FetchRepo(ctx); err != nil {
		w.report(ctx, job, ds, []string{errors.UserMessage(err)})
		return err
	}

	ds.Apply(job.Changes)

	failures := newMessageSet()
	added, removed := w.applyFileOps(ctx, ds, job.FileOps, failures, log)

	dsSchema, err := sync.ResolveSchema(ctx)
	if err != nil {
		failures.add(errors.UserMessage(err))
	}
	invalid := w.validateFiles(ctx, ds, dsSchema, failures)

	if !failures.empty() {
		// Files that validated persist even though the batch fails; only
		// files added by this batch that failed validation are discarded.
		for _, id := range invalid {
			if added[id] {
				ds.RemoveFile(id)
			}
		}
		if err := w.datasets.Save(ctx, ds); err != nil {
			log.Warn("saving dataset after failed mutation", logfields.Error(err))
		}
		w.report(ctx, job, ds, failures.messages)
		return errors.ValidationError("dataset mutation failed validation")
	}

	for _, f := range removed {
		sync.RemoveRemoteFile(f)
	}

	pubErr := w.publishDataset(ctx, sync, ds, log)
	if pubErr != nil && !retry.IsDeadline(pubErr) {
		failures.add(errors.UserMessage(pubErr))
		w.report(ctx, job, ds, failures.messages)
		return pubErr
	}

	if err := w.datasets.Save(ctx, ds); err != nil {
		w.report(ctx, job, ds, []string{"dataset could not be saved"})
		return errors.Wrap(err, errors.CategoryInternal, errors.SeverityFatal,
			"saving dataset")
	}

	if pubErr != nil {
		// Build outlived the poll deadline; the sweeper finishes the job.
		failures.add(fmt.Sprintf(
			"the site for '%s' is still building and will be re-checked later", ds.Name))
		w.report(ctx, job, ds, failures.messages)
		return pubErr
	}

	w.report(ctx, job, ds, nil)
	return nil
}

// applyFileOps walks the operations in submission order. A failed op is
// recorded and skipped; later ops still run. It returns the ids of files
// added by this batch and the files removed from the dataset, whose remote
// artifacts still need deletion staged before the next push.
func (w *Worker) applyFileOps(ctx context.Context, ds *dataset.Dataset,
	ops []dataset.FileSpec, failures *messageSet, log *slog.Logger) (added map[string]bool, removed []*dataset.File) {

	added = make(map[string]bool)
	for _, op := range ops {
		if op.Remove {
			f := ds.FileByID(op.ID)
			if f == nil {
				failures.add(fmt.Sprintf("file %s does not exist in this dataset", op.ID))
				continue
			}
			ds.RemoveFile(op.ID)
			removed = append(removed, f)
			log.Debug("file removed", logfields.File(f.Filename()))
			continue
		}

		if len(op.SchemaDoc) > 0 {
			id, err := w.createInlineSchema(op)
			if err != nil {
				failures.add(fileMessage(op.Title, errors.UserMessage(err)))
				continue
			}
			op.SchemaID = id
		}

		if op.ID != "" {
			f := ds.FileByID(op.ID)
			if f == nil {
				failures.add(fmt.Sprintf("file %s does not exist in this dataset", op.ID))
				continue
			}
			if err := f.Update(ctx, op); err != nil {
				failures.add(fileMessage(f.Title, errors.UserMessage(err)))
			}
			continue
		}

		f, err := dataset.NewFile(ctx, op)
		if err != nil {
			failures.add(fileMessage(op.Title, errors.UserMessage(err)))
			continue
		}
		if err := ds.AddFile(f); err != nil {
			failures.add(errors.UserMessage(err))
			continue
		}
		added[f.ID] = true
		log.Debug("file added", logfields.File(f.Filename()))
	}
	return added, removed
}

// createInlineSchema registers a schema supplied inline with a file op. The
// schema must resolve fully before it can be attached.
func (w *Worker) createInlineSchema(op dataset.FileSpec) (string, error) {
	fs := &dataset.FileSchema{
		ID:          uuid.NewString(),
		Name:        op.SchemaName,
		Description: op.SchemaDescription,
		Doc:         op.SchemaDoc,
	}
	if _, err := fs.Resolve(context.Background(), w.resolver); err != nil {
		return "", err
	}
	w.schemas.Put(fs)
	return fs.ID, nil
}

// validateFiles checks every dirty file against its applicable schema: the
// file's own schema when one is attached, the dataset-wide schema otherwise.
// It returns the ids of the files that failed.
func (w *Worker) validateFiles(ctx context.Context, ds *dataset.Dataset,
	dsSchema *tableschema.Schema, failures *messageSet) (invalid []string) {

	v := validate.New()
	for _, f := range ds.Files {
		if !f.Dirty() {
			continue
		}

		schema, err := w.schemaFor(ctx, f)
		if schema == nil && err == nil {
			schema = dsSchema
		}
		if err != nil {
			w.recorder.IncValidationFailure("schema")
			failures.add(fileMessage(f.Title, errors.UserMessage(err)))
			invalid = append(invalid, f.ID)
			continue
		}

		result := v.Validate(f.Filename(), f.Content, schema)
		if result.OK {
			continue
		}
		for _, msg := range result.Messages {
			w.recorder.IncValidationFailure("content")
			failures.add(fileMessage(f.Title, msg))
		}
		invalid = append(invalid, f.ID)
	}
	return invalid
}

func (w *Worker) schemaFor(ctx context.Context, f *dataset.File) (*tableschema.Schema, error) {
	if f.SchemaID == "" {
		return nil, nil
	}
	fs := w.schemas.Get(f.SchemaID)
	if fs == nil {
		return nil, errors.New(errors.CategorySchema, errors.SeverityError,
			fmt.Sprintf("schema %s is not registered", f.SchemaID))
	}
	return fs.Resolve(ctx, w.resolver)
}

// publishDataset runs the publish state machine: a dataset with no remote
// yet publishes fresh, one with a remote pushes an update. A deadline error
// registers a sweeper recheck and is passed through.
func (w *Worker) publishDataset(ctx context.Context, sync *publish.Synchronizer,
	ds *dataset.Dataset, log *slog.Logger) error {

	coord := publish.NewCoordinator(sync, w.store, w.issuer,
		w.pollPolicy, w.pollDeadline, w.recorder, log)

	var err error
	if sync.Handle() == nil {
		err = coord.PublishNew(ctx)
	} else {
		err = coord.PublishUpdate(ctx)
	}

	if err != nil && retry.IsDeadline(err) && w.pending != nil {
		w.pending.Add(ds.ID, func(ctx context.Context) error {
			return coord.AwaitBuild(ctx)
		})
	}
	return err
}

// report delivers the terminal status exactly once: success notifies the
// channel with the dataset, failure notifies the channel with the collected
// messages or, without a channel, persists an error record under the job id.
func (w *Worker) report(ctx context.Context, job *MutationJob, ds *dataset.Dataset, failures []string) {
	log := w.log.With(logfields.JobID(job.ID))

	if len(failures) == 0 {
		if job.Channel != "" && w.notifier != nil {
			if err := w.notifier.DatasetCreated(ctx, job.Channel, ds); err != nil {
				log.Warn("success notification failed",
					logfields.Channel(job.Channel), logfields.Error(err))
			}
		}
		return
	}

	if job.Channel != "" && w.notifier != nil {
		if err := w.notifier.DatasetFailed(ctx, job.Channel, failures); err != nil {
			log.Warn("failure notification failed",
				logfields.Channel(job.Channel), logfields.Error(err))
		}
		return
	}

	if w.errstore != nil {
		if err := w.errstore.RecordError(ctx, job.ID, failures); err != nil {
			log.Error("persisting failure record failed", logfields.Error(err))
		}
	}
}

// fileMessage renders a per-file failure in the user-facing form.
func fileMessage(title, msg string) string {
	if title == "" {
		return msg
	}
	return fmt.Sprintf("Your file '%s' %s", title, msg)
}
