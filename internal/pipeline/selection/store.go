// Package selection holds the user's picks for one creation session. State survives
// stage navigation but is scoped to a session id and cleared on entry and exit.
package selection

import (
	"context"
	"errors"
	"sync"

	"github.com/yungbote/loresmith/internal/domain"
)

var ErrNoSession = errors.New("selection session not initialised")

// Draft is the tentative pick on the current stage before it is committed by advancing.
type Draft struct {
	Stage    domain.Stage     `json:"stage"`
	Index    *int             `json:"index,omitempty"`
	Artifact *domain.Artifact `json:"artifact,omitempty"`
}

type Store interface {
	// Init clears anything stored for session and marks it live.
	Init(ctx context.Context, session string) error
	Put(ctx context.Context, session string, key domain.SelectionKey, a domain.Artifact) error
	Load(ctx context.Context, session string) (domain.SelectionState, error)
	SaveDraft(ctx context.Context, session string, d Draft) error
	LoadDraft(ctx context.Context, session string) (Draft, error)
	// Teardown removes everything stored for session.
	Teardown(ctx context.Context, session string) error
}

type memSession struct {
	picks domain.SelectionState
	draft Draft
}

type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*memSession
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: map[string]*memSession{}}
}

func (s *MemoryStore) Init(ctx context.Context, session string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session] = &memSession{picks: domain.SelectionState{}}
	return nil
}

func (s *MemoryStore) Put(ctx context.Context, session string, key domain.SelectionKey, a domain.Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[session]
	if !ok {
		return ErrNoSession
	}
	sess.picks[key] = a
	return nil
}

func (s *MemoryStore) Load(ctx context.Context, session string) (domain.SelectionState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[session]
	if !ok {
		return nil, ErrNoSession
	}
	return sess.picks.Clone(), nil
}

func (s *MemoryStore) SaveDraft(ctx context.Context, session string, d Draft) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[session]
	if !ok {
		return ErrNoSession
	}
	sess.draft = cloneDraft(d)
	return nil
}

func (s *MemoryStore) LoadDraft(ctx context.Context, session string) (Draft, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[session]
	if !ok {
		return Draft{}, ErrNoSession
	}
	return cloneDraft(sess.draft), nil
}

func (s *MemoryStore) Teardown(ctx context.Context, session string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, session)
	return nil
}

func cloneDraft(d Draft) Draft {
	out := Draft{Stage: d.Stage}
	if d.Index != nil {
		i := *d.Index
		out.Index = &i
	}
	if d.Artifact != nil {
		a := *d.Artifact
		out.Artifact = &a
	}
	return out
}
