package tableschema

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// Resolver fetches, parses, and caches schema documents keyed by reference
// identity. Schema documents are treated as immutable once fetched, so the
// cache never invalidates. Safe for concurrent use; resolved schemas are
// shared read-only.
type Resolver struct {
	client *http.Client
	mu     sync.RWMutex
	cache  map[string]*Schema
}

// NewResolver creates a resolver with a bounded HTTP client.
func NewResolver() *Resolver {
	return &Resolver{
		client: &http.Client{Timeout: 30 * time.Second},
		cache:  make(map[string]*Schema),
	}
}

// Resolve fetches and classifies the schema at url. Repeated calls for the
// same reference return the cached result without re-fetching.
func (r *Resolver) Resolve(ctx context.Context, url string) (*Schema, error) {
	r.mu.RLock()
	cached, ok := r.cache[url]
	r.mu.RUnlock()
	if ok {
		return cached, nil
	}

	doc, err := r.fetch(ctx, url)
	if err != nil {
		return nil, &ResolutionError{Kind: KindUnreachable, Ref: url, Err: err}
	}

	schema, err := Parse(doc)
	if err != nil {
		if re, ok := err.(*ResolutionError); ok {
			re.Ref = url
		}
		return nil, err
	}

	r.mu.Lock()
	r.cache[url] = schema
	r.mu.Unlock()
	return schema, nil
}

// ResolveInline parses an inline schema document and caches it under the
// given identity (typically the owning file schema's id).
func (r *Resolver) ResolveInline(id string, doc []byte) (*Schema, error) {
	r.mu.RLock()
	cached, ok := r.cache[id]
	r.mu.RUnlock()
	if ok {
		return cached, nil
	}

	schema, err := Parse(doc)
	if err != nil {
		if re, ok := err.(*ResolutionError); ok {
			re.Ref = id
		}
		return nil, err
	}

	r.mu.Lock()
	r.cache[id] = schema
	r.mu.Unlock()
	return schema, nil
}

func (r *Resolver) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 4<<20))
}
