// Package identity tracks the signed-in user and notifies listeners when it changes.
package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"cookbooksync/backend/store"
	"cookbooksync/internal/utils"
)

// SessionKey is the store key holding the persisted current user
const SessionKey = "auth_current_user"

// User is an authenticated identity. A nil *User means signed out.
type User struct {
	UID         string `json:"uid" yaml:"uid"`
	IsAnonymous bool   `json:"isAnonymous" yaml:"isAnonymous"`
}

// Provider exposes the current user and change notifications
type Provider interface {
	CurrentUser() *User
	// Subscribe registers fn for every change; the returned func unsubscribes
	Subscribe(fn func(*User)) func()
}

// Session is a Provider persisted in the local store
type Session struct {
	mu        sync.RWMutex
	store     store.Store
	current   *User
	listeners map[int]func(*User)
	nextID    int
}

// OpenSession restores the persisted user, if any
func OpenSession(ctx context.Context, st store.Store) (*Session, error) {
	s := &Session{store: st, listeners: make(map[int]func(*User))}

	raw, ok, err := st.Get(ctx, SessionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}
	if ok && raw != "" && raw != "null" {
		var u User
		if err := json.Unmarshal([]byte(raw), &u); err != nil || u.UID == "" {
			utils.Warnf("Ignoring unreadable session %q: %v", raw, err)
		} else {
			s.current = &u
		}
	}
	return s, nil
}

// CurrentUser returns a copy of the signed-in user, or nil
func (s *Session) CurrentUser() *User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil
	}
	u := *s.current
	return &u
}

// UID returns the signed-in user id or "" when signed out
func (s *Session) UID() string {
	if u := s.CurrentUser(); u != nil {
		return u.UID
	}
	return ""
}

// SignIn persists u as the current user and notifies subscribers
func (s *Session) SignIn(ctx context.Context, u User) error {
	if u.UID == "" {
		return fmt.Errorf("user id cannot be empty")
	}
	data, err := json.Marshal(u)
	if err != nil {
		return err
	}
	return s.set(ctx, &u, string(data))
}

// SignOut clears the current user and notifies subscribers
func (s *Session) SignOut(ctx context.Context) error {
	return s.set(ctx, nil, "null")
}

func (s *Session) set(ctx context.Context, u *User, raw string) error {
	if err := s.store.Set(ctx, SessionKey, raw); err != nil {
		return fmt.Errorf("failed to persist session: %w", err)
	}

	s.mu.Lock()
	s.current = u
	listeners := make([]func(*User), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	// Listeners run outside the lock so they may call back into the session
	for _, fn := range listeners {
		var cp *User
		if u != nil {
			v := *u
			cp = &v
		}
		fn(cp)
	}
	return nil
}

// Subscribe registers fn for sign-in and sign-out events
func (s *Session) Subscribe(fn func(*User)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}
