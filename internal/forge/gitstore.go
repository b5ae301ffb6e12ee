package forge

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/storage/memory"

	cfg "git.home.luguber.info/inful/datapub/internal/config"
)

// GitStore implements Store over plain git remotes for self-hosted setups
// that serve pages straight from the repository. Repositories live at
// <base_url>/<owner>/<name>.git and there is no asynchronous page build, so
// PagesStatus always reports built.
type GitStore struct {
	baseURL string
	auth    transport.AuthMethod
}

// NewGitStore creates a plain-git store from the forge config.
func NewGitStore(fc cfg.ForgeConfig) (*GitStore, error) {
	if fc.Type != cfg.ForgeGit {
		return nil, fmt.Errorf("invalid forge type for git store: %s", fc.Type)
	}
	if fc.BaseURL == "" {
		return nil, fmt.Errorf("git store requires a base_url")
	}

	s := &GitStore{baseURL: strings.TrimSuffix(fc.BaseURL, "/")}
	if fc.Token != "" {
		s.auth = &githttp.BasicAuth{Username: "datapub", Password: fc.Token}
	}
	return s, nil
}

func (s *GitStore) remoteURL(owner, name string) string {
	return fmt.Sprintf("%s/%s/%s.git", s.baseURL, owner, name)
}

// Find clones the repository into memory and returns a handle over its
// worktree.
func (s *GitStore) Find(ctx context.Context, owner, name string) (Handle, error) {
	fs := memfs.New()
	repo, err := git.CloneContext(ctx, memory.NewStorage(), fs, &git.CloneOptions{
		URL:   s.remoteURL(owner, name),
		Auth:  s.auth,
		Depth: 1,
	})
	if err != nil {
		if errors.Is(err, transport.ErrRepositoryNotFound) || errors.Is(err, transport.ErrEmptyRemoteRepository) {
			return nil, &NotFoundError{Owner: owner, Name: name}
		}
		return nil, fmt.Errorf("clone %s/%s: %w", owner, name, err)
	}
	return s.newHandle(owner, name, repo, fs), nil
}

// Exists reports whether the remote name is taken.
func (s *GitStore) Exists(ctx context.Context, owner, name string) (bool, error) {
	_, err := s.Find(ctx, owner, name)
	if err == nil {
		return true, nil
	}
	if IsNotFound(err) {
		return false, nil
	}
	return false, err
}

// Create initializes a fresh in-memory repository pointed at the remote.
// The remote itself materializes on the first push.
func (s *GitStore) Create(ctx context.Context, owner, name string, _ bool) (Handle, error) {
	fs := memfs.New()
	repo, err := git.Init(memory.NewStorage(), fs)
	if err != nil {
		return nil, fmt.Errorf("init repository: %w", err)
	}
	_, err = repo.CreateRemote(&config.RemoteConfig{
		Name: "origin",
		URLs: []string{s.remoteURL(owner, name)},
	})
	if err != nil {
		return nil, fmt.Errorf("configure remote: %w", err)
	}
	return s.newHandle(owner, name, repo, fs), nil
}

// Delete removes the published content by pushing a branch deletion. Plain
// git hosting has no repository-deletion API; removing the served branch is
// the closest equivalent.
func (s *GitStore) Delete(ctx context.Context, h Handle) error {
	gh, ok := h.(*gitHandle)
	if !ok {
		return fmt.Errorf("foreign handle type %T", h)
	}
	err := gh.repo.PushContext(ctx, &git.PushOptions{
		RemoteName: "origin",
		Auth:       s.auth,
		RefSpecs:   []config.RefSpec{config.RefSpec(":refs/heads/main")},
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("delete remote branch: %w", err)
	}
	return nil
}

// PagesStatus always reports built: plain git hosting serves content as
// soon as the push lands.
func (s *GitStore) PagesStatus(context.Context, string, string) (string, error) {
	return BuildStatusBuilt, nil
}

func (s *GitStore) newHandle(owner, name string, repo *git.Repository, fs billy.Filesystem) *gitHandle {
	return &gitHandle{
		store: s,
		repo:  repo,
		fs:    fs,
		meta: &Repository{
			Name:          name,
			FullName:      owner + "/" + name,
			Owner:         owner,
			HTMLURL:       s.remoteURL(owner, name),
			DefaultBranch: "main",
		},
	}
}

// gitHandle stages changes against an in-memory worktree and publishes them
// as one commit.
type gitHandle struct {
	store  *GitStore
	repo   *git.Repository
	fs     billy.Filesystem
	meta   *Repository
	staged []stagedOp
}

func (h *gitHandle) Repository() *Repository { return h.meta }

func (h *gitHandle) PutFile(p string, content []byte) {
	h.staged = append(h.staged, stagedOp{path: p, content: content})
}

func (h *gitHandle) RemoveFile(p string) {
	h.staged = append(h.staged, stagedOp{path: p, remove: true})
}

func (h *gitHandle) Push(ctx context.Context) error {
	if len(h.staged) == 0 {
		return nil
	}

	wt, err := h.repo.Worktree()
	if err != nil {
		return fmt.Errorf("worktree: %w", err)
	}

	for _, op := range h.staged {
		if op.remove {
			if _, err := wt.Remove(op.path); err != nil {
				return fmt.Errorf("remove %s: %w", op.path, err)
			}
			continue
		}
		if err := h.writeFile(op.path, op.content); err != nil {
			return err
		}
		if _, err := wt.Add(op.path); err != nil {
			return fmt.Errorf("stage %s: %w", op.path, err)
		}
	}

	_, err = wt.Commit("Update data package", &git.CommitOptions{
		Author: &object.Signature{Name: "datapub", Email: "datapub@localhost", When: time.Now()},
	})
	if err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	head, err := h.repo.Head()
	if err != nil {
		return fmt.Errorf("head: %w", err)
	}
	refSpec := config.RefSpec(head.Name().String() + ":refs/heads/main")

	err = h.repo.PushContext(ctx, &git.PushOptions{
		RemoteName: "origin",
		Auth:       h.store.auth,
		RefSpecs:   []config.RefSpec{refSpec},
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("push: %w", err)
	}

	h.staged = nil
	return nil
}

func (h *gitHandle) writeFile(p string, content []byte) error {
	if dir := path.Dir(p); dir != "." {
		if err := h.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}
	f, err := h.fs.Create(p)
	if err != nil {
		return fmt.Errorf("create %s: %w", p, err)
	}
	defer f.Close()
	if _, err := f.Write(content); err != nil {
		return fmt.Errorf("write %s: %w", p, err)
	}
	return nil
}
