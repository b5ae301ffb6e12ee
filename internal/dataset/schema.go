package dataset

import (
	"context"
	"sync"

	"git.home.luguber.info/inful/datapub/internal/tableschema"
)

// FileSchema is a named, shareable schema attached to dataset files. The
// parsed representation is resolved lazily and then cached; once resolved,
// the dialect tag never changes for this instance.
type FileSchema struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	URL         string `json:"url,omitempty"`

	// Doc holds inline schema content when the schema was created from a
	// submission rather than a url.
	Doc []byte `json:"-"`

	mu     sync.Mutex
	parsed *tableschema.Schema
}

// Resolve returns the parsed schema, resolving via the given resolver only
// when the cache is absent.
func (s *FileSchema) Resolve(ctx context.Context, r *tableschema.Resolver) (*tableschema.Schema, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.parsed != nil {
		return s.parsed, nil
	}

	var (
		parsed *tableschema.Schema
		err    error
	)
	if len(s.Doc) > 0 {
		parsed, err = r.ResolveInline(s.ID, s.Doc)
	} else {
		parsed, err = r.Resolve(ctx, s.URL)
	}
	if err != nil {
		return nil, err
	}
	s.parsed = parsed
	return parsed, nil
}

// Dialect returns the resolved dialect tag, or empty if unresolved.
func (s *FileSchema) Dialect() tableschema.Dialect {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.parsed == nil {
		return ""
	}
	return s.parsed.Dialect
}

// SchemaRegistry shares FileSchema instances by id across files that
// reference the same schema.
type SchemaRegistry struct {
	mu      sync.RWMutex
	schemas map[string]*FileSchema
}

// NewSchemaRegistry creates an empty registry.
func NewSchemaRegistry() *SchemaRegistry {
	return &SchemaRegistry{schemas: make(map[string]*FileSchema)}
}

// Get returns the schema with the given id, or nil.
func (r *SchemaRegistry) Get(id string) *FileSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.schemas[id]
}

// Put registers a schema instance under its id.
func (r *SchemaRegistry) Put(s *FileSchema) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schemas[s.ID] = s
}
