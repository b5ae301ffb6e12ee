package forge

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	cfg "git.home.luguber.info/inful/datapub/internal/config"
)

// GitHubStore implements Store against the GitHub REST API.
type GitHubStore struct {
	httpClient *http.Client
	apiURL     string
	baseURL    string
	token      string
}

// NewGitHubStore creates a GitHub-backed store from the forge config.
func NewGitHubStore(fc cfg.ForgeConfig) (*GitHubStore, error) {
	if fc.Type != cfg.ForgeGitHub {
		return nil, fmt.Errorf("invalid forge type for GitHub store: %s", fc.Type)
	}
	if fc.Token == "" {
		return nil, fmt.Errorf("GitHub store requires token authentication")
	}

	s := &GitHubStore{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		apiURL:     fc.APIURL,
		baseURL:    fc.BaseURL,
		token:      fc.Token,
	}
	if s.apiURL == "" {
		s.apiURL = "https://api.github.com"
	}
	if s.baseURL == "" {
		s.baseURL = "https://github.com"
	}
	return s, nil
}

// githubRepo is the wire shape of a repository.
type githubRepo struct {
	Name          string `json:"name"`
	FullName      string `json:"full_name"`
	HTMLURL       string `json:"html_url"`
	DefaultBranch string `json:"default_branch"`
	Private       bool   `json:"private"`
	Owner         struct {
		Login string `json:"login"`
	} `json:"owner"`
}

func (r githubRepo) toRepository() *Repository {
	branch := r.DefaultBranch
	if branch == "" {
		branch = "main"
	}
	return &Repository{
		Name:          r.Name,
		FullName:      r.FullName,
		Owner:         r.Owner.Login,
		HTMLURL:       r.HTMLURL,
		DefaultBranch: branch,
		Private:       r.Private,
	}
}

// Find returns a handle to an existing repository, or NotFoundError.
func (s *GitHubStore) Find(ctx context.Context, owner, name string) (Handle, error) {
	var repo githubRepo
	status, err := s.doJSON(ctx, http.MethodGet, fmt.Sprintf("/repos/%s/%s", owner, name), nil, &repo)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, &NotFoundError{Owner: owner, Name: name}
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("get repository %s/%s: status %d", owner, name, status)
	}
	return &githubHandle{store: s, repo: repo.toRepository()}, nil
}

// Exists reports whether the remote name is taken.
func (s *GitHubStore) Exists(ctx context.Context, owner, name string) (bool, error) {
	_, err := s.Find(ctx, owner, name)
	if err == nil {
		return true, nil
	}
	if IsNotFound(err) {
		return false, nil
	}
	return false, err
}

// Create allocates the repository with an initial commit so the git data API
// has a ref to build on.
func (s *GitHubStore) Create(ctx context.Context, owner, name string, private bool) (Handle, error) {
	body := map[string]any{
		"name":      name,
		"private":   private,
		"auto_init": true,
	}

	var repo githubRepo
	status, err := s.doJSON(ctx, http.MethodPost, fmt.Sprintf("/orgs/%s/repos", owner), body, &repo)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		// owner is a user, not an organization
		status, err = s.doJSON(ctx, http.MethodPost, "/user/repos", body, &repo)
		if err != nil {
			return nil, err
		}
	}
	if status != http.StatusCreated {
		return nil, fmt.Errorf("create repository %s/%s: status %d", owner, name, status)
	}
	return &githubHandle{store: s, repo: repo.toRepository()}, nil
}

// Delete removes the repository in its entirety.
func (s *GitHubStore) Delete(ctx context.Context, h Handle) error {
	repo := h.Repository()
	status, err := s.doJSON(ctx, http.MethodDelete, "/repos/"+repo.FullName, nil, nil)
	if err != nil {
		return err
	}
	if status != http.StatusNoContent {
		return fmt.Errorf("delete repository %s: status %d", repo.FullName, status)
	}
	return nil
}

// PagesStatus queries the provider's page-build status.
func (s *GitHubStore) PagesStatus(ctx context.Context, owner, name string) (string, error) {
	var pages struct {
		Status string `json:"status"`
	}
	status, err := s.doJSON(ctx, http.MethodGet, fmt.Sprintf("/repos/%s/%s/pages", owner, name), nil, &pages)
	if err != nil {
		return "", err
	}
	if status == http.StatusNotFound {
		// site not provisioned yet: absent, not an error
		return "", nil
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("pages status %s/%s: status %d", owner, name, status)
	}
	return pages.Status, nil
}

// githubHandle stages content changes and publishes them as one commit via
// the git data API.
type githubHandle struct {
	store  *GitHubStore
	repo   *Repository
	staged []stagedOp
}

func (h *githubHandle) Repository() *Repository { return h.repo }

func (h *githubHandle) PutFile(path string, content []byte) {
	h.staged = append(h.staged, stagedOp{path: path, content: content})
}

func (h *githubHandle) RemoveFile(path string) {
	h.staged = append(h.staged, stagedOp{path: path, remove: true})
}

// Push creates blobs for all staged writes, builds one tree on top of the
// current head, commits it, and moves the branch ref. Downstream readers see
// either the old head or the new one, never an intermediate state.
func (h *githubHandle) Push(ctx context.Context) error {
	if len(h.staged) == 0 {
		return nil
	}
	s := h.store
	full := h.repo.FullName
	branch := h.repo.DefaultBranch

	var ref struct {
		Object struct {
			SHA string `json:"sha"`
		} `json:"object"`
	}
	status, err := s.doJSON(ctx, http.MethodGet, fmt.Sprintf("/repos/%s/git/ref/heads/%s", full, branch), nil, &ref)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("resolve ref heads/%s: status %d", branch, status)
	}

	var head struct {
		Tree struct {
			SHA string `json:"sha"`
		} `json:"tree"`
	}
	status, err = s.doJSON(ctx, http.MethodGet, fmt.Sprintf("/repos/%s/git/commits/%s", full, ref.Object.SHA), nil, &head)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("resolve head commit: status %d", status)
	}

	type treeEntry struct {
		Path string  `json:"path"`
		Mode string  `json:"mode"`
		Type string  `json:"type"`
		SHA  *string `json:"sha"`
	}
	entries := make([]treeEntry, 0, len(h.staged))
	for _, op := range h.staged {
		if op.remove {
			entries = append(entries, treeEntry{Path: op.path, Mode: "100644", Type: "blob", SHA: nil})
			continue
		}
		var blob struct {
			SHA string `json:"sha"`
		}
		status, err = s.doJSON(ctx, http.MethodPost, "/repos/"+full+"/git/blobs", map[string]string{
			"content":  base64.StdEncoding.EncodeToString(op.content),
			"encoding": "base64",
		}, &blob)
		if err != nil {
			return err
		}
		if status != http.StatusCreated {
			return fmt.Errorf("create blob for %s: status %d", op.path, status)
		}
		sha := blob.SHA
		entries = append(entries, treeEntry{Path: op.path, Mode: "100644", Type: "blob", SHA: &sha})
	}

	var tree struct {
		SHA string `json:"sha"`
	}
	status, err = s.doJSON(ctx, http.MethodPost, "/repos/"+full+"/git/trees", map[string]any{
		"base_tree": head.Tree.SHA,
		"tree":      entries,
	}, &tree)
	if err != nil {
		return err
	}
	if status != http.StatusCreated {
		return fmt.Errorf("create tree: status %d", status)
	}

	var commit struct {
		SHA string `json:"sha"`
	}
	status, err = s.doJSON(ctx, http.MethodPost, "/repos/"+full+"/git/commits", map[string]any{
		"message": "Update data package",
		"tree":    tree.SHA,
		"parents": []string{ref.Object.SHA},
	}, &commit)
	if err != nil {
		return err
	}
	if status != http.StatusCreated {
		return fmt.Errorf("create commit: status %d", status)
	}

	status, err = s.doJSON(ctx, http.MethodPatch, fmt.Sprintf("/repos/%s/git/refs/heads/%s", full, branch), map[string]any{
		"sha": commit.SHA,
	}, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("update ref heads/%s: status %d", branch, status)
	}

	h.staged = nil
	return nil
}

// doJSON performs an API request, decoding the response into out when
// non-nil. The HTTP status is returned so callers can map 404s to domain
// semantics instead of errors.
func (s *GitHubStore) doJSON(ctx context.Context, method, path string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.apiURL+path, reader)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Accept", "application/vnd.github+json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	} else {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	}
	return resp.StatusCode, nil
}
