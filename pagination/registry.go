// Package pagination merges cursor-paginated pages of a list field into a
// single view. Pages are recorded under a key derived from the field name and
// its arguments; resolving a field concatenates every recorded page of that
// field in recording order.
package pagination

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Result is the merged view of a paginated field.
type Result[T any] struct {
	Items []T
	// Partial is set when the requested page itself has not been recorded yet.
	// Items still holds what is known; the caller should fetch the page.
	Partial bool
	// NeedRefetch is set when nothing is recorded for the field at all.
	NeedRefetch bool
}

type fieldPages[T any] struct {
	order []string
	pages map[string][]T
}

// Registry records pages per field key. It is safe for concurrent use.
type Registry[T any] struct {
	mu     sync.RWMutex
	id     func(T) string
	fields map[string]*fieldPages[T]
}

// NewRegistry returns an empty registry. id returns the identity used to drop
// items repeated across pages; the first occurrence wins.
func NewRegistry[T any](id func(T) string) *Registry[T] {
	return &Registry[T]{id: id, fields: make(map[string]*fieldPages[T])}
}

// FieldKey serializes a field invocation. Map keys are emitted sorted, so equal
// arguments always produce equal keys.
func FieldKey(field string, args map[string]any) (string, error) {
	if args == nil {
		args = map[string]any{}
	}
	b, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("field key %s: %w", field, err)
	}
	return field + "(" + string(b) + ")", nil
}

// Record stores items as the page for field invoked with args. Recording an
// existing key replaces its items without changing its position.
func (r *Registry[T]) Record(field string, args map[string]any, items []T) error {
	key, err := FieldKey(field, args)
	if err != nil {
		return err
	}
	page := append([]T(nil), items...)

	r.mu.Lock()
	defer r.mu.Unlock()
	fp, ok := r.fields[field]
	if !ok {
		fp = &fieldPages[T]{pages: make(map[string][]T)}
		r.fields[field] = fp
	}
	if _, seen := fp.pages[key]; !seen {
		fp.order = append(fp.order, key)
	}
	fp.pages[key] = page
	return nil
}

// Resolve returns the merged view of field for a request with args.
func (r *Registry[T]) Resolve(field string, args map[string]any) (Result[T], error) {
	key, err := FieldKey(field, args)
	if err != nil {
		return Result[T]{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	fp, ok := r.fields[field]
	if !ok || len(fp.order) == 0 {
		return Result[T]{NeedRefetch: true}, nil
	}

	_, recorded := fp.pages[key]
	res := Result[T]{Partial: !recorded, Items: []T{}}
	seen := make(map[string]struct{})
	for _, k := range fp.order {
		for _, item := range fp.pages[k] {
			id := r.id(item)
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			res.Items = append(res.Items, item)
		}
	}
	return res, nil
}

// Invalidate drops every page recorded for field.
func (r *Registry[T]) Invalidate(field string) {
	r.mu.Lock()
	delete(r.fields, field)
	r.mu.Unlock()
}

// Pages returns how many pages are recorded for field.
func (r *Registry[T]) Pages(field string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if fp, ok := r.fields[field]; ok {
		return len(fp.order)
	}
	return 0
}
