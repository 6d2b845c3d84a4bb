// Package mem provides an in-process accounts.Store. It backs the package's
// own tests and suits embedding scenarios that need no durability.
// Atomically works on a deep copy that is swapped in only when the
// transaction function succeeds, so partial mutations are never visible.
package mem

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/arjenw/accounts"
)

type state struct {
	users  map[string]*accounts.User // by ID
	tokens []*accounts.Token
}

func newState() *state {
	return &state{users: make(map[string]*accounts.User)}
}

func (st *state) clone() *state {
	next := &state{
		users:  make(map[string]*accounts.User, len(st.users)),
		tokens: make([]*accounts.Token, len(st.tokens)),
	}
	for id, u := range st.users {
		cp := *u
		next.users[id] = &cp
	}
	for i, t := range st.tokens {
		cp := *t
		next.tokens[i] = &cp
	}
	return next
}

// Store implements accounts.Store in memory.
type Store struct {
	mu sync.Mutex
	st *state

	// tx is set on the transaction view handed to Atomically callbacks;
	// such views operate on the pending clone without locking.
	tx bool
}

func New() *Store {
	return &Store{st: newState()}
}

func (s *Store) lock() func() {
	if s.tx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// Atomically runs fn against a cloned state and commits the clone only when
// fn returns nil.
func (s *Store) Atomically(ctx context.Context, fn func(tx accounts.Store) error) error {
	if s.tx {
		return fn(s)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	pending := &Store{st: s.st.clone(), tx: true}
	if err := fn(pending); err != nil {
		return err
	}
	s.st = pending.st
	return nil
}

// =============================================================================
// Users
// =============================================================================

func (s *Store) UserByID(ctx context.Context, id string) (*accounts.User, error) {
	defer s.lock()()
	if u, ok := s.st.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (s *Store) UserByEmail(ctx context.Context, email string) (*accounts.User, error) {
	return s.findUser(func(u *accounts.User) bool { return u.Email != "" && u.Email == email })
}

func (s *Store) UserByPhone(ctx context.Context, phone string) (*accounts.User, error) {
	return s.findUser(func(u *accounts.User) bool { return u.Phone != "" && u.Phone == phone })
}

func (s *Store) UserByIdentifier(ctx context.Context, identifier string) (*accounts.User, error) {
	return s.findUser(func(u *accounts.User) bool {
		return (u.Email != "" && u.Email == identifier) || (u.Phone != "" && u.Phone == identifier)
	})
}

func (s *Store) findUser(match func(*accounts.User) bool) (*accounts.User, error) {
	defer s.lock()()
	for _, u := range s.st.users {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *Store) CreateUser(ctx context.Context, u *accounts.User) error {
	defer s.lock()()
	cp := *u
	s.st.users[u.ID] = &cp
	return nil
}

func (s *Store) UpdateUser(ctx context.Context, u *accounts.User) error {
	defer s.lock()()
	cp := *u
	s.st.users[u.ID] = &cp
	return nil
}

// =============================================================================
// Tokens
// =============================================================================

func (s *Store) InsertToken(ctx context.Context, t *accounts.Token) error {
	defer s.lock()()
	cp := *t
	s.st.tokens = append(s.st.tokens, &cp)
	return nil
}

func (s *Store) TokenByHash(ctx context.Context, hash []byte, c accounts.Context, maxAge time.Duration) (*accounts.Token, error) {
	defer s.lock()()
	cutoff := time.Now().Add(-maxAge)
	for _, t := range s.st.tokens {
		if bytes.Equal(t.Hash, hash) && t.Context.String() == c.String() && t.InsertedAt.After(cutoff) {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *Store) SessionByTrackingID(ctx context.Context, userID, trackingID string) (*accounts.Token, error) {
	defer s.lock()()
	for _, t := range s.st.tokens {
		if t.UserID == userID && t.Context.Kind == accounts.ContextSession && t.TrackingID == trackingID {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *Store) DeleteToken(ctx context.Context, hash []byte, c accounts.Context) error {
	return s.deleteWhere(func(t *accounts.Token) bool {
		return bytes.Equal(t.Hash, hash) && t.Context.String() == c.String()
	})
}

func (s *Store) DeleteUserTokens(ctx context.Context, userID string, contexts ...accounts.Context) error {
	return s.deleteWhere(func(t *accounts.Token) bool {
		if t.UserID != userID {
			return false
		}
		if len(contexts) == 0 {
			return true
		}
		for _, c := range contexts {
			if t.Context.String() == c.String() {
				return true
			}
		}
		return false
	})
}

func (s *Store) DeleteSessionsExcept(ctx context.Context, userID string, keep []byte) error {
	return s.deleteWhere(func(t *accounts.Token) bool {
		return t.UserID == userID && t.Context.Kind == accounts.ContextSession && !bytes.Equal(t.Hash, keep)
	})
}

func (s *Store) deleteWhere(match func(*accounts.Token) bool) error {
	defer s.lock()()
	kept := s.st.tokens[:0]
	for _, t := range s.st.tokens {
		if !match(t) {
			kept = append(kept, t)
		}
	}
	s.st.tokens = kept
	return nil
}
