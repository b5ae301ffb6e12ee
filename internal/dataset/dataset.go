// Package dataset holds the domain model for published datasets and their
// tabular files.
package dataset

import (
	"fmt"
	"strings"

	"git.home.luguber.info/inful/datapub/internal/errors"
)

// Publisher identifies who publishes a dataset.
type Publisher struct {
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
	URL  string `json:"web,omitempty" yaml:"url,omitempty"`
}

// Dataset is one published data package.
type Dataset struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	License     string    `json:"license,omitempty"`
	Publisher   Publisher `json:"publisher,omitempty"`
	Frequency   string    `json:"frequency,omitempty"`
	Owner       string    `json:"owner"`

	// SchemaRef is a url to a dataset-wide schema document, or empty.
	SchemaRef string `json:"schema,omitempty"`

	// Remote repository coordinates, set once the repository exists.
	Repo           string `json:"repo,omitempty"`
	FullName       string `json:"full_name,omitempty"`
	URL            string `json:"url,omitempty"`
	CertificateURL string `json:"certificate_url,omitempty"`
	JobID          string `json:"job_id,omitempty"`

	Files []*File `json:"files,omitempty"`
}

// RepoName derives the remote repository name from the dataset name.
func (d *Dataset) RepoName() string {
	return Slugify(d.Name)
}

// RepoFullName is the owner-qualified remote name the dataset publishes to.
func (d *Dataset) RepoFullName() string {
	if d.FullName != "" {
		return d.FullName
	}
	return d.Owner + "/" + d.RepoName()
}

// GitHubURL is the browsable repository url.
func (d *Dataset) GitHubURL() string {
	return "https://github.com/" + d.RepoFullName()
}

// PagesURL is the url the static site is served from.
func (d *Dataset) PagesURL() string {
	repo := d.Repo
	if repo == "" {
		repo = d.RepoName()
	}
	return fmt.Sprintf("https://%s.github.io/%s", d.Owner, repo)
}

// SchemaDiscoveryURL is where a previously-pushed schema document would live.
func (d *Dataset) SchemaDiscoveryURL() string {
	return d.PagesURL() + "/schema.json"
}

// FileByID returns the file with the given identity, or nil.
func (d *Dataset) FileByID(id string) *File {
	for _, f := range d.Files {
		if f.ID == id {
			return f
		}
	}
	return nil
}

// AddFile appends a file, enforcing filename uniqueness. Two titles that
// slugify to the same filename collide and must error, never overwrite.
func (d *Dataset) AddFile(f *File) error {
	name := f.Filename()
	for _, existing := range d.Files {
		if strings.EqualFold(existing.Filename(), name) {
			return errors.ValidationError(
				fmt.Sprintf("filename '%s' is already taken in this dataset", name))
		}
	}
	d.Files = append(d.Files, f)
	return nil
}

// RemoveFile drops the file with the given identity from the collection.
func (d *Dataset) RemoveFile(id string) {
	for i, f := range d.Files {
		if f.ID == id {
			d.Files = append(d.Files[:i], d.Files[i+1:]...)
			return
		}
	}
}

// AttributeChanges is the set of dataset attribute mutations a job may apply.
// Nil pointers leave the current value untouched.
type AttributeChanges struct {
	Name          *string `json:"name,omitempty" yaml:"name,omitempty"`
	Description   *string `json:"description,omitempty" yaml:"description,omitempty"`
	License       *string `json:"license,omitempty" yaml:"license,omitempty"`
	PublisherName *string `json:"publisher_name,omitempty" yaml:"publisher_name,omitempty"`
	PublisherURL  *string `json:"publisher_url,omitempty" yaml:"publisher_url,omitempty"`
	Frequency     *string `json:"frequency,omitempty" yaml:"frequency,omitempty"`
	SchemaRef     *string `json:"schema,omitempty" yaml:"schema,omitempty"`
}

// Apply mutates the dataset in place with the supplied changes.
func (d *Dataset) Apply(ch AttributeChanges) {
	if ch.Name != nil {
		d.Name = *ch.Name
	}
	if ch.Description != nil {
		d.Description = *ch.Description
	}
	if ch.License != nil {
		d.License = *ch.License
	}
	if ch.PublisherName != nil {
		d.Publisher.Name = *ch.PublisherName
	}
	if ch.PublisherURL != nil {
		d.Publisher.URL = *ch.PublisherURL
	}
	if ch.Frequency != nil {
		d.Frequency = *ch.Frequency
	}
	if ch.SchemaRef != nil {
		d.SchemaRef = *ch.SchemaRef
	}
}
