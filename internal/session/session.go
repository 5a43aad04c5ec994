// Package session owns the locally held identity: who is logged in, whether
// the app considers itself authenticated, and the durable record that
// survives restarts.
package session

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"marketsync/internal/storage"
)

// RecordKey is the fixed namespace key of the durable session record.
const RecordKey = "market-app-session"

const recordVersion = 1

type Identity struct {
	UserID      string
	PartyID     string
	DisplayName string
}

type State struct {
	Identity
	Authenticated bool
	// Loading is a UI-readiness flag, orthogonal to authentication and never
	// persisted.
	Loading bool
}

type persistedState struct {
	UserID          string `json:"userId"`
	PartyID         string `json:"partyId"`
	DisplayName     string `json:"displayName"`
	IsAuthenticated bool   `json:"isAuthenticated"`
}

type persistedRecord struct {
	State   persistedState `json:"state"`
	Version int            `json:"version"`
}

// Store is the single process-wide session service. It rehydrates from the
// durable record at construction and writes the authenticated subset of its
// state back on every change.
type Store struct {
	mu      sync.Mutex
	state   State
	store   storage.Store
	logger  *zap.Logger
	subs    map[int]func(State)
	nextSub int
}

func NewStore(ctx context.Context, store storage.Store, logger *zap.Logger) *Store {
	s := &Store{
		store:  store,
		logger: logger,
		subs:   map[int]func(State){},
	}
	s.state = rehydrate(ctx, store, logger)
	return s
}

// rehydrate reads the durable record. A missing or unparsable record means no
// session; corruption is never surfaced as an error.
func rehydrate(ctx context.Context, store storage.Store, logger *zap.Logger) State {
	if store == nil {
		return State{}
	}
	raw, ok, err := store.Get(ctx, RecordKey)
	if err != nil || !ok {
		return State{}
	}
	var rec persistedRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		if logger != nil {
			logger.Warn("session record unparsable, treating as no session", zap.Error(err))
		}
		return State{}
	}
	return State{
		Identity: Identity{
			UserID:      rec.State.UserID,
			PartyID:     rec.State.PartyID,
			DisplayName: rec.State.DisplayName,
		},
		Authenticated: rec.State.IsAuthenticated,
	}
}

func (s *Store) Login(ctx context.Context, id Identity) error {
	s.mu.Lock()
	s.state.Identity = id
	s.state.Authenticated = true
	snapshot := s.state
	s.mu.Unlock()

	s.notify(snapshot)
	return s.persist(ctx, snapshot)
}

func (s *Store) Logout(ctx context.Context) error {
	s.mu.Lock()
	s.state.Identity = Identity{}
	s.state.Authenticated = false
	snapshot := s.state
	s.mu.Unlock()

	s.notify(snapshot)
	return s.persist(ctx, snapshot)
}

// SetLoading flips the UI-readiness flag. It does not touch authentication
// state and is not written to the durable record.
func (s *Store) SetLoading(loading bool) {
	s.mu.Lock()
	s.state.Loading = loading
	snapshot := s.state
	s.mu.Unlock()
	s.notify(snapshot)
}

func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Store) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Authenticated
}

// Subscribe registers a listener called after every state change. The
// returned function removes it.
func (s *Store) Subscribe(fn func(State)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *Store) notify(snapshot State) {
	s.mu.Lock()
	fns := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(snapshot)
	}
}

func (s *Store) persist(ctx context.Context, snapshot State) error {
	if s.store == nil {
		return nil
	}
	rec := persistedRecord{
		State: persistedState{
			UserID:          snapshot.UserID,
			PartyID:         snapshot.PartyID,
			DisplayName:     snapshot.DisplayName,
			IsAuthenticated: snapshot.Authenticated,
		},
		Version: recordVersion,
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := s.store.Set(ctx, RecordKey, raw); err != nil {
		if s.logger != nil {
			s.logger.Warn("session record write failed", zap.Error(err))
		}
		return err
	}
	return nil
}
