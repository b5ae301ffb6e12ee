// Package publish drives the remote side of dataset publication: repository
// synchronization, the publish state machine, build polling, and
// certification.
package publish

import (
	"context"
	"fmt"
	"log/slog"

	"git.home.luguber.info/inful/datapub/internal/datapackage"
	"git.home.luguber.info/inful/datapub/internal/dataset"
	"git.home.luguber.info/inful/datapub/internal/errors"
	"git.home.luguber.info/inful/datapub/internal/forge"
	"git.home.luguber.info/inful/datapub/internal/logfields"
	"git.home.luguber.info/inful/datapub/internal/tableschema"
)

// Synchronizer reconciles one dataset against its remote repository. It is
// scoped to a single dataset and a single job; it is not safe for concurrent
// use.
type Synchronizer struct {
	store    forge.Store
	resolver *tableschema.Resolver
	log      *slog.Logger

	ds     *dataset.Dataset
	handle forge.Handle
}

// NewSynchronizer builds a synchronizer for one dataset.
func NewSynchronizer(store forge.Store, resolver *tableschema.Resolver, ds *dataset.Dataset, log *slog.Logger) *Synchronizer {
	if log == nil {
		log = slog.Default()
	}
	return &Synchronizer{
		store:    store,
		resolver: resolver,
		ds:       ds,
		log:      log.With(logfields.Dataset(ds.Name)),
	}
}

// Dataset returns the dataset this synchronizer operates on.
func (s *Synchronizer) Dataset() *dataset.Dataset { return s.ds }

// Handle returns the remote handle, or nil when the remote repository does
// not exist or has not been fetched yet.
func (s *Synchronizer) Handle() forge.Handle { return s.handle }

// FetchRepo loads the remote repository handle. A missing remote is not an
// error; the handle is left nil and publication can proceed by creating it.
// When the dataset has no schema reference, a schema document previously
// pushed to the site is adopted if one resolves.
func (s *Synchronizer) FetchRepo(ctx context.Context) error {
	h, err := s.store.Find(ctx, s.ds.Owner, s.ds.RepoName())
	if err != nil {
		if forge.IsNotFound(err) {
			s.handle = nil
			return nil
		}
		return errors.WrapRetryable(err, errors.CategoryForge, errors.SeverityError,
			"fetching remote repository")
	}

	s.handle = h
	repo := h.Repository()
	s.ds.Repo = repo.Name
	s.ds.FullName = repo.FullName
	if repo.HTMLURL != "" {
		s.ds.URL = repo.HTMLURL
	}
	s.discoverSchema(ctx)
	return nil
}

// discoverSchema probes the published site for a schema.json left by an
// earlier publication. Absence is normal and ignored.
func (s *Synchronizer) discoverSchema(ctx context.Context) {
	if s.resolver == nil || s.ds.SchemaRef != "" {
		return
	}
	url := s.ds.SchemaDiscoveryURL()
	if _, err := s.resolver.Resolve(ctx, url); err != nil {
		return
	}
	s.log.Debug("adopted published schema document", logfields.File("schema.json"))
	s.ds.SchemaRef = url
}

// ResolveSchema returns the dataset-wide schema, or nil when the dataset has
// no schema reference.
func (s *Synchronizer) ResolveSchema(ctx context.Context) (*tableschema.Schema, error) {
	if s.ds.SchemaRef == "" || s.resolver == nil {
		return nil, nil
	}
	return s.resolver.Resolve(ctx, s.ds.SchemaRef)
}

// CreateRepo creates the remote repository for the dataset. The name is
// checked first so a taken name surfaces as a user-facing validation failure
// with no remote side effects.
func (s *Synchronizer) CreateRepo(ctx context.Context) error {
	name := s.ds.RepoName()
	taken, err := s.store.Exists(ctx, s.ds.Owner, name)
	if err != nil {
		return errors.WrapRetryable(err, errors.CategoryForge, errors.SeverityError,
			"checking repository name availability")
	}
	if taken {
		return errors.ValidationError(
			fmt.Sprintf("repository name '%s' already exists", name))
	}

	h, err := s.store.Create(ctx, s.ds.Owner, name, false)
	if err != nil {
		return errors.WrapRetryable(err, errors.CategoryForge, errors.SeverityError,
			"creating remote repository")
	}

	s.handle = h
	repo := h.Repository()
	s.ds.Repo = repo.Name
	s.ds.FullName = repo.FullName
	s.ds.URL = repo.HTMLURL
	s.log.Info("created remote repository", logfields.Repository(repo.FullName))
	return nil
}

// PushNew stages the full site for a freshly created repository and pushes it
// as one commit: data files, view pages, scaffold, site config, descriptor,
// and the schema document plus api pages when a schema applies.
func (s *Synchronizer) PushNew(ctx context.Context) error {
	if s.handle == nil {
		return errors.New(errors.CategoryInternal, errors.SeverityFatal,
			"push attempted before repository exists")
	}

	schema, err := s.ResolveSchema(ctx)
	if err != nil {
		return err
	}

	for _, f := range s.ds.Files {
		s.stageFile(f)
	}

	scaffold, err := ScaffoldFiles(s.ds)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, errors.SeverityFatal,
			"building site scaffold")
	}
	for path, content := range scaffold {
		s.handle.PutFile(path, content)
	}

	siteCfg, err := datapackage.NewSiteConfig(s.ds).YAML()
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, errors.SeverityFatal,
			"building site config")
	}
	s.handle.PutFile("_config.yml", siteCfg)

	if err := s.stageDescriptor(schema); err != nil {
		return err
	}
	if schema != nil {
		s.handle.PutFile("schema.json", schema.Raw)
		s.stageAPIPages()
	}

	if err := s.push(ctx); err != nil {
		return err
	}
	s.markPushed(s.ds.Files)
	return nil
}

// PushUpdate pushes changed files and the refreshed descriptor as one commit.
// Files whose content is unchanged are not re-staged.
func (s *Synchronizer) PushUpdate(ctx context.Context) error {
	if s.handle == nil {
		return errors.New(errors.CategoryForge, errors.SeverityFatal,
			"remote repository not found for update")
	}

	schema, err := s.ResolveSchema(ctx)
	if err != nil {
		return err
	}

	var changed []*dataset.File
	for _, f := range s.ds.Files {
		if !f.Dirty() {
			continue
		}
		s.stageFile(f)
		changed = append(changed, f)
	}

	if err := s.stageDescriptor(schema); err != nil {
		return err
	}

	if err := s.push(ctx); err != nil {
		return err
	}
	s.markPushed(changed)
	return nil
}

// RemoveRemoteFile stages deletion of a file's data and view page for the
// next push. Without a remote the file was never pushed; nothing to stage.
func (s *Synchronizer) RemoveRemoteFile(f *dataset.File) {
	if s.handle == nil {
		return
	}
	s.handle.RemoveFile("data/" + f.Filename())
	s.handle.RemoveFile(f.ViewFilename())
}

// DeleteRepo removes the remote repository. An already-missing remote is
// treated as success.
func (s *Synchronizer) DeleteRepo(ctx context.Context) error {
	if s.handle == nil {
		if err := s.FetchRepo(ctx); err != nil {
			return err
		}
		if s.handle == nil {
			return nil
		}
	}
	if err := s.store.Delete(ctx, s.handle); err != nil {
		if forge.IsNotFound(err) {
			s.handle = nil
			return nil
		}
		return errors.WrapRetryable(err, errors.CategoryForge, errors.SeverityError,
			"deleting remote repository")
	}
	s.log.Info("deleted remote repository", logfields.Repository(s.ds.RepoFullName()))
	s.handle = nil
	return nil
}

// PushSiteConfig stages a replacement _config.yml and pushes it immediately.
func (s *Synchronizer) PushSiteConfig(ctx context.Context, cfg datapackage.SiteConfig) error {
	if s.handle == nil {
		return errors.New(errors.CategoryForge, errors.SeverityError,
			"remote repository not found for config update")
	}
	b, err := cfg.YAML()
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, errors.SeverityError,
			"building site config")
	}
	s.handle.PutFile("_config.yml", b)
	return s.push(ctx)
}

func (s *Synchronizer) stageFile(f *dataset.File) {
	s.handle.PutFile("data/"+f.Filename(), f.Content)
	s.handle.PutFile(f.ViewFilename(), viewPage(f))
}

func (s *Synchronizer) stageDescriptor(schema *tableschema.Schema) error {
	desc, err := datapackage.Build(s.ds, schema).JSON()
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, errors.SeverityFatal,
			"building datapackage descriptor")
	}
	s.handle.PutFile("datapackage.json", desc)
	return nil
}

func (s *Synchronizer) stageAPIPages() {
	for _, f := range s.ds.Files {
		s.handle.PutFile("api/"+dataset.Slugify(f.Title)+".md", apiPage(f))
	}
}

func (s *Synchronizer) push(ctx context.Context) error {
	if err := s.handle.Push(ctx); err != nil {
		return errors.WrapRetryable(err, errors.CategoryForge, errors.SeverityError,
			"pushing to remote repository")
	}
	return nil
}

func (s *Synchronizer) markPushed(files []*dataset.File) {
	for _, f := range files {
		f.MarkPushed(f.ContentSHA(), "")
	}
}

// viewPage is the Jekyll page that renders one data file as a browsable
// table.
func viewPage(f *dataset.File) []byte {
	return []byte(fmt.Sprintf(
		"---\nlayout: resource\ntitle: %s\ndescription: %s\nresource: %s\n---\n",
		yamlScalar(f.Title), yamlScalar(f.Description), f.Filename()))
}

// apiPage is the Jekyll page exposing one data file as JSON records.
func apiPage(f *dataset.File) []byte {
	return []byte(fmt.Sprintf(
		"---\nlayout: api-item\ntitle: %s\nresource: %s\npermalink: /api/%s/\n---\n",
		yamlScalar(f.Title), f.Filename(), dataset.Slugify(f.Title)))
}

// yamlScalar quotes a front-matter value so titles with colons stay valid.
func yamlScalar(v string) string {
	return fmt.Sprintf("%q", v)
}
