package publish

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/datapub/internal/datapackage"
	"git.home.luguber.info/inful/datapub/internal/errors"
	"git.home.luguber.info/inful/datapub/internal/forge"
	"git.home.luguber.info/inful/datapub/internal/logfields"
	"git.home.luguber.info/inful/datapub/internal/metrics"
	"git.home.luguber.info/inful/datapub/internal/retry"
)

// State is a dataset's position in the publish lifecycle.
type State string

const (
	StateDraft         State = "draft"
	StateRemoteCreated State = "remote_created"
	StateContentPushed State = "content_pushed"
	StateBuildPending  State = "build_pending"
	StateCertified     State = "certified"
	StateBuildFailed   State = "build_failed"
)

// Coordinator drives one dataset through the publish lifecycle:
//
//	Draft → RemoteCreated → ContentPushed → BuildPending → Certified|BuildFailed
//
// A fatal step leaves the dataset in its last successfully-reached state.
type Coordinator struct {
	sync     *Synchronizer
	store    forge.Store
	issuer   CertificateIssuer
	recorder metrics.Recorder
	log      *slog.Logger

	pollPolicy   retry.Policy
	pollDeadline time.Duration

	state State
}

// NewCoordinator builds a coordinator for one dataset. issuer may be nil
// when certification is disabled.
func NewCoordinator(sync *Synchronizer, store forge.Store, issuer CertificateIssuer,
	pollPolicy retry.Policy, pollDeadline time.Duration,
	recorder metrics.Recorder, log *slog.Logger) *Coordinator {

	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{
		sync:         sync,
		store:        store,
		issuer:       issuer,
		recorder:     recorder,
		log:          log.With(logfields.Dataset(sync.Dataset().Name)),
		pollPolicy:   pollPolicy,
		pollDeadline: pollDeadline,
		state:        StateDraft,
	}
}

// State returns the lifecycle state reached so far.
func (c *Coordinator) State() State { return c.state }

func (c *Coordinator) setState(s State) {
	c.state = s
	c.log.Debug("publish state changed", logfields.State(string(s)))
}

// PublishNew creates the remote repository, pushes the full site, and waits
// for the hosted build before certifying. A taken repository name fails
// before any remote mutation.
func (c *Coordinator) PublishNew(ctx context.Context) error {
	c.setState(StateDraft)

	if err := c.timed("create_repo", func() error { return c.sync.CreateRepo(ctx) }); err != nil {
		return err
	}
	c.setState(StateRemoteCreated)

	if err := c.timed("push_new", func() error { return c.sync.PushNew(ctx) }); err != nil {
		return err
	}
	c.setState(StateContentPushed)

	return c.AwaitBuild(ctx)
}

// PublishUpdate pushes changed content to an existing repository. Updates do
// not re-enter the build/certificate flow.
func (c *Coordinator) PublishUpdate(ctx context.Context) error {
	if c.sync.Handle() != nil {
		c.state = StateRemoteCreated
	}
	if err := c.timed("push_update", func() error { return c.sync.PushUpdate(ctx) }); err != nil {
		return err
	}
	c.setState(StateContentPushed)
	return nil
}

// AwaitBuild polls the hosting provider until the site build completes, then
// runs certification. The poll is bounded: when the deadline passes the
// dataset stays in BuildPending and a deadline error is returned so the
// caller can schedule a later re-check.
func (c *Coordinator) AwaitBuild(ctx context.Context) error {
	c.setState(StateBuildPending)
	ds := c.sync.Dataset()

	start := time.Now()
	err := retry.Poll(ctx, c.pollPolicy, c.pollDeadline, func(ctx context.Context) (bool, error) {
		status, err := c.store.PagesStatus(ctx, ds.Owner, ds.RepoName())
		if err != nil {
			// Transient status-check failures count as "not built yet".
			c.log.Warn("build status check failed", logfields.Error(err))
			c.recorder.IncBuildPollRetry()
			return false, nil
		}
		switch status {
		case forge.BuildStatusBuilt:
			return true, nil
		case forge.BuildStatusErrored:
			return false, errors.New(errors.CategoryBuild, errors.SeverityError,
				"site build reported an error")
		default:
			c.recorder.IncBuildPollRetry()
			return false, nil
		}
	})
	c.recorder.ObservePublishStageDuration("await_build", time.Since(start))

	if err != nil {
		if retry.IsDeadline(err) {
			c.recorder.IncBuildPollExhausted()
			return errors.WrapRetryable(err, errors.CategoryBuild, errors.SeverityWarning,
				fmt.Sprintf("site build not finished for %s", ds.RepoFullName()))
		}
		c.setState(StateBuildFailed)
		return err
	}

	c.certify(ctx)
	c.setState(StateCertified)
	return nil
}

// certify requests a certificate for the built site and, when one is issued,
// rewrites the site config with the badge reference. Certificate failures
// degrade softly: the dataset is still considered published.
func (c *Coordinator) certify(ctx context.Context) {
	if c.issuer == nil {
		return
	}
	ds := c.sync.Dataset()
	siteURL := ds.PagesURL()

	pending, err := c.issuer.Request(ctx, siteURL)
	if err != nil {
		c.recorder.IncCertificateResult(false)
		c.log.Warn("certificate request failed", logfields.Error(err))
		return
	}
	if !pending {
		c.recorder.IncCertificateResult(false)
		c.log.Warn("certificate request not accepted")
		return
	}

	certURL, err := c.issuer.Result(ctx, siteURL)
	if err != nil || certURL == "" {
		c.recorder.IncCertificateResult(false)
		if err != nil {
			c.log.Warn("certificate result unavailable", logfields.Error(err))
		} else {
			c.log.Info("certificate still pending, publishing without badge")
		}
		return
	}

	ds.CertificateURL = badgeBase(certURL)
	if err := c.pushCertifiedConfig(ctx); err != nil {
		c.recorder.IncCertificateResult(false)
		c.log.Warn("pushing certified site config failed", logfields.Error(err))
		return
	}
	c.recorder.IncCertificateResult(true)
	c.log.Info("certificate issued", slog.String("certificate_url", ds.CertificateURL))
}

func (c *Coordinator) pushCertifiedConfig(ctx context.Context) error {
	if c.sync.Handle() == nil {
		if err := c.sync.FetchRepo(ctx); err != nil {
			return err
		}
	}
	return c.sync.PushSiteConfig(ctx, datapackage.CertifiedSiteConfig(c.sync.Dataset()))
}

func (c *Coordinator) timed(stage string, fn func() error) error {
	start := time.Now()
	err := fn()
	c.recorder.ObservePublishStageDuration(stage, time.Since(start))
	return err
}
