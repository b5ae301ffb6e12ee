package forge

import (
	"context"
	"sync"
)

// MockStore is an in-memory Store for tests and local development. Pushed
// file sets are visible via Files; staged-but-unpushed changes are not,
// matching the push atomicity contract.
type MockStore struct {
	mu    sync.Mutex
	repos map[string]*mockRepo

	// Failure injection.
	CreateErr error
	PushErr   error
	DeleteErr error

	// PagesStatuses is consumed one value per PagesStatus call; when
	// exhausted the last value repeats. Empty means always built.
	PagesStatuses []string

	pagesCalls int
}

type mockRepo struct {
	meta   *Repository
	files  map[string][]byte
	pushes int
}

// NewMockStore creates an empty mock store.
func NewMockStore() *MockStore {
	return &MockStore{repos: make(map[string]*mockRepo)}
}

// Seed pre-creates a repository with no files, for collision tests.
func (s *MockStore) Seed(owner, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	full := owner + "/" + name
	s.repos[full] = &mockRepo{
		meta:  &Repository{Name: name, FullName: full, Owner: owner, DefaultBranch: "main"},
		files: make(map[string][]byte),
	}
}

// Files returns a copy of the pushed file set, or nil when the repository
// does not exist.
func (s *MockStore) Files(owner, name string) map[string][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.repos[owner+"/"+name]
	if !ok {
		return nil
	}
	out := make(map[string][]byte, len(r.files))
	for k, v := range r.files {
		out[k] = v
	}
	return out
}

// PushCount returns how many pushes the repository has received.
func (s *MockStore) PushCount(owner, name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.repos[owner+"/"+name]; ok {
		return r.pushes
	}
	return 0
}

func (s *MockStore) Find(_ context.Context, owner, name string) (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.repos[owner+"/"+name]
	if !ok {
		return nil, &NotFoundError{Owner: owner, Name: name}
	}
	return &mockHandle{store: s, repo: r}, nil
}

func (s *MockStore) Exists(_ context.Context, owner, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.repos[owner+"/"+name]
	return ok, nil
}

func (s *MockStore) Create(_ context.Context, owner, name string, private bool) (Handle, error) {
	if s.CreateErr != nil {
		return nil, s.CreateErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	full := owner + "/" + name
	r := &mockRepo{
		meta: &Repository{
			Name: name, FullName: full, Owner: owner,
			HTMLURL:       "https://github.com/" + full,
			DefaultBranch: "main",
			Private:       private,
		},
		files: make(map[string][]byte),
	}
	s.repos[full] = r
	return &mockHandle{store: s, repo: r}, nil
}

func (s *MockStore) Delete(_ context.Context, h Handle) error {
	if s.DeleteErr != nil {
		return s.DeleteErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.repos, h.Repository().FullName)
	return nil
}

func (s *MockStore) PagesStatus(context.Context, string, string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.PagesStatuses) == 0 {
		return BuildStatusBuilt, nil
	}
	idx := s.pagesCalls
	if idx >= len(s.PagesStatuses) {
		idx = len(s.PagesStatuses) - 1
	}
	s.pagesCalls++
	return s.PagesStatuses[idx], nil
}

type mockHandle struct {
	store  *MockStore
	repo   *mockRepo
	staged []stagedOp
}

func (h *mockHandle) Repository() *Repository { return h.repo.meta }

func (h *mockHandle) PutFile(path string, content []byte) {
	h.staged = append(h.staged, stagedOp{path: path, content: content})
}

func (h *mockHandle) RemoveFile(path string) {
	h.staged = append(h.staged, stagedOp{path: path, remove: true})
}

func (h *mockHandle) Push(context.Context) error {
	if h.store.PushErr != nil {
		return h.store.PushErr
	}
	h.store.mu.Lock()
	defer h.store.mu.Unlock()

	for _, op := range h.staged {
		if op.remove {
			delete(h.repo.files, op.path)
			continue
		}
		h.repo.files[op.path] = op.content
	}
	h.repo.pushes++
	h.staged = nil
	return nil
}
