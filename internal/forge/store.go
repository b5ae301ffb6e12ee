// Package forge abstracts the git hosting backend datasets are published to.
//
// A Store allocates and deletes remote repositories; a Handle stages file
// content changes against one repository and publishes them atomically with
// Push. Readers of the hosted site never observe a partially-pushed state
// between two pushes.
package forge

import "context"

// Repository describes a remote repository on a forge.
type Repository struct {
	Name          string `json:"name"`
	FullName      string `json:"full_name"`
	Owner         string `json:"owner"`
	HTMLURL       string `json:"html_url"`
	DefaultBranch string `json:"default_branch"`
	Private       bool   `json:"private"`
}

// Page-build status values reported by the hosting provider.
const (
	BuildStatusBuilt    = "built"
	BuildStatusBuilding = "building"
	BuildStatusErrored  = "errored"
)

// Handle stages content changes against one remote repository.
// Implementations are not safe for concurrent use; a handle is scoped to one
// dataset and one job at a time.
type Handle interface {
	// Repository returns the remote repository this handle operates on.
	Repository() *Repository

	// PutFile stages a create-or-update of the named path.
	PutFile(path string, content []byte)

	// RemoveFile stages a deletion of the named path.
	RemoveFile(path string)

	// Push commits and publishes all staged changes as one unit. Staged
	// operations are cleared on success.
	Push(ctx context.Context) error
}

// Store is the external git hosting collaborator.
type Store interface {
	// Find returns a handle to an existing repository, or NotFoundError.
	Find(ctx context.Context, owner, name string) (Handle, error)

	// Exists reports whether the remote name is taken, without allocating.
	Exists(ctx context.Context, owner, name string) (bool, error)

	// Create allocates a new repository and returns its handle.
	Create(ctx context.Context, owner, name string, private bool) (Handle, error)

	// Delete removes the repository in its entirety.
	Delete(ctx context.Context, h Handle) error

	// PagesStatus returns the provider's page-build status for the
	// repository ("built", "building", "errored", or "" when absent).
	PagesStatus(ctx context.Context, owner, name string) (string, error)
}

// NotFoundError reports an absent remote repository. Callers treat it as
// benign "no prior state", never fatal.
type NotFoundError struct {
	Owner string
	Name  string
}

func (e *NotFoundError) Error() string {
	return "repository not found: " + e.Owner + "/" + e.Name
}

// IsNotFound returns true if the error is a NotFoundError.
func IsNotFound(err error) bool {
	_, ok := err.(*NotFoundError)
	return ok
}

// stagedOp is one pending content change on a handle.
type stagedOp struct {
	path    string
	content []byte
	remove  bool
}
