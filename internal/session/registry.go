package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/joseph-ayodele/contracts-desk/internal/common"
	"github.com/joseph-ayodele/contracts-desk/internal/extract"
)

// DocumentSource resolves a document ID to its read-only handle.
type DocumentSource interface {
	Get(documentID string) (extract.DocumentRef, error)
}

// Registry holds the live sessions, keyed by session ID. Sessions are
// explicit objects with defined creation and teardown; there is no ambient
// global state. Sessions for different documents run independently and never
// observe each other.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	docs     DocumentSource
	deps     Deps
	log      *slog.Logger
}

// NewRegistry builds an empty registry.
func NewRegistry(docs DocumentSource, deps Deps) *Registry {
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		sessions: make(map[string]*Session),
		docs:     docs,
		deps:     deps,
		log:      log,
	}
}

// Create registers a session for documentID and drives it through
// classification and the first extraction pass.
func (r *Registry) Create(ctx context.Context, documentID string) (*Session, error) {
	doc, err := r.docs.Get(documentID)
	if err != nil {
		return nil, err
	}

	s := New(doc, r.deps)
	r.mu.Lock()
	r.sessions[s.ID()] = s
	r.mu.Unlock()
	r.log.Info("registry.session_created", "session_id", s.ID(), "document_id", documentID)

	if err := s.Start(ctx); err != nil {
		return s, fmt.Errorf("start session %s: %w", s.ID(), err)
	}
	return s, nil
}

// Get returns the live session for id.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: session %s", common.ErrNotFound, id)
	}
	return s, nil
}

// Teardown cancels any in-flight call and removes the session from the
// registry. Terminal sessions have already been archived by the machine.
func (r *Registry) Teardown(id string) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()
	if ok {
		s.CancelInflight()
		r.log.Info("registry.session_removed", "session_id", id)
	}
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
