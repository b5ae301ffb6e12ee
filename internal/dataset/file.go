package dataset

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/datapub/internal/errors"
)

// File is one tabular file inside a dataset. A file belongs to exactly one
// dataset; content is ingested once at creation, from an upload or a source
// url, and optionally replaced by update operations.
type File struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Mediatype   string `json:"mediatype,omitempty"`
	SchemaID    string `json:"dataset_file_schema_id,omitempty"`

	Content []byte `json:"-"`

	// Content hashes for the pushed data file and its generated view page.
	FileSHA string `json:"file_sha,omitempty"`
	ViewSHA string `json:"view_sha,omitempty"`

	// dirty marks content that has not been pushed remotely yet.
	dirty bool
}

// FileSpec describes an add or update operation's input for one file.
type FileSpec struct {
	ID          string `yaml:"id,omitempty"`
	Title       string `yaml:"title,omitempty"`
	Description string `yaml:"description,omitempty"`

	// Remove deletes the file named by ID from the dataset and its remote
	// artifacts on the next push.
	Remove bool `yaml:"remove,omitempty"`

	// Exactly one of Content or SourceURL supplies new content; both empty
	// on update means a metadata-only change.
	Content   []byte `yaml:"content,omitempty"`
	SourceURL string `yaml:"source_url,omitempty"`

	// Inline schema creation for this file.
	SchemaName        string `yaml:"schema_name,omitempty"`
	SchemaDescription string `yaml:"schema_description,omitempty"`
	SchemaDoc         []byte `yaml:"schema,omitempty"`
	SchemaID          string `yaml:"schema_id,omitempty"`
}

// HasContent reports whether the spec carries new file content.
func (s FileSpec) HasContent() bool {
	return len(s.Content) > 0 || s.SourceURL != ""
}

var sourceClient = &http.Client{Timeout: 60 * time.Second}

// NewFile creates a file from a spec, ingesting content from the upload
// bytes or by fetching the source url once.
func NewFile(ctx context.Context, spec FileSpec) (*File, error) {
	if spec.Title == "" {
		return nil, errors.ValidationError("file title is required")
	}

	f := &File{
		ID:          uuid.NewString(),
		Title:       spec.Title,
		Description: spec.Description,
		Mediatype:   "text/csv",
		SchemaID:    spec.SchemaID,
	}
	if err := f.ingest(ctx, spec); err != nil {
		return nil, err
	}
	return f, nil
}

// Update applies a spec to an existing file: metadata always replaceable,
// content replaced only when the spec carries new content.
func (f *File) Update(ctx context.Context, spec FileSpec) error {
	if spec.Title != "" {
		f.Title = spec.Title
	}
	if spec.Description != "" {
		f.Description = spec.Description
	}
	if spec.SchemaID != "" {
		f.SchemaID = spec.SchemaID
	}
	if spec.HasContent() {
		return f.ingest(ctx, spec)
	}
	return nil
}

func (f *File) ingest(ctx context.Context, spec FileSpec) error {
	switch {
	case len(spec.Content) > 0:
		f.Content = spec.Content
	case spec.SourceURL != "":
		content, err := fetchSource(ctx, spec.SourceURL)
		if err != nil {
			return errors.Wrap(err, errors.CategoryNetwork, errors.SeverityError,
				fmt.Sprintf("fetch file content from %s", spec.SourceURL))
		}
		f.Content = content
	default:
		return errors.ValidationError("file content or source url is required")
	}
	f.dirty = true
	return nil
}

// Filename derives the stored name from the title: slug plus extension.
func (f *File) Filename() string {
	return Slugify(f.Title) + ".csv"
}

// ViewFilename is the repository path of the file's generated view page,
// kept next to the data file.
func (f *File) ViewFilename() string {
	return "data/" + Slugify(f.Title) + ".md"
}

// Dirty reports whether the file carries content not yet pushed.
func (f *File) Dirty() bool { return f.dirty }

// MarkPushed records the pushed content hashes and clears the dirty flag.
func (f *File) MarkPushed(fileSHA, viewSHA string) {
	f.FileSHA = fileSHA
	f.ViewSHA = viewSHA
	f.dirty = false
}

// ContentSHA is the sha256 hex digest of the current content.
func (f *File) ContentSHA() string {
	sum := sha256.Sum256(f.Content)
	return hex.EncodeToString(sum[:])
}

func fetchSource(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := sourceClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 64<<20))
}
