// Package dockind routes document writes to the handler registered for the
// document's content kind. The registry is closed and validated at startup:
// a missing handler is a deployment defect, not a runtime condition.
package dockind

import (
	"context"
	"fmt"

	"github.com/xxxsen/coscribe/internal/model"
)

// Handler transforms content for one document kind before it is persisted.
type Handler interface {
	Kind() string
	// OnCreate receives the freshly assigned id and the generated draft and
	// returns the content to store.
	OnCreate(ctx context.Context, id, title, draft string) (string, error)
	// OnUpdate receives the current stored document and the new draft and
	// returns the content to store.
	OnUpdate(ctx context.Context, doc *model.Document, draft string) (string, error)
}

type Registry struct {
	handlers map[string]Handler
}

// NewRegistry builds the kind->handler map. Duplicate kinds are rejected so
// wiring mistakes surface at startup.
func NewRegistry(handlers ...Handler) (*Registry, error) {
	reg := &Registry{handlers: make(map[string]Handler, len(handlers))}
	for _, h := range handlers {
		kind := h.Kind()
		if kind == "" {
			return nil, fmt.Errorf("handler with empty kind")
		}
		if _, ok := reg.handlers[kind]; ok {
			return nil, fmt.Errorf("duplicate handler for kind %q", kind)
		}
		reg.handlers[kind] = h
	}
	return reg, nil
}

// Get returns the handler for kind. The error is a configuration error;
// callers treat it as fatal rather than retrying.
func (r *Registry) Get(kind string) (Handler, error) {
	h, ok := r.handlers[kind]
	if !ok {
		return nil, fmt.Errorf("no handler registered for kind %q", kind)
	}
	return h, nil
}

// Validate checks that every named kind has a handler. Run at startup so a
// hole in the registry fails deployment, not a user request.
func (r *Registry) Validate(kinds ...string) error {
	for _, kind := range kinds {
		if _, err := r.Get(kind); err != nil {
			return err
		}
	}
	return nil
}
