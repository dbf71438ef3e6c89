// Package server implements the backoffice auth backend: the /api/auth
// surface, cookie-backed sessions, and the account store behind them.
package server

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

var (
	// ErrInvalidCredentials is returned when the provided credentials are invalid.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserNotFound is returned when a user is not found.
	ErrUserNotFound = errors.New("user not found")
	// ErrSessionNotFound is returned when the request carries no live session.
	ErrSessionNotFound = errors.New("session not found")
)

// User is a backoffice account as stored on disk. PasswordHash is a bcrypt
// hash; roles keep file order, which is the order clients see.
type User struct {
	UserID       string   `yaml:"userId"`
	Username     string   `yaml:"username"`
	PasswordHash string   `yaml:"passwordHash"`
	Roles        []string `yaml:"roles"`
	Permissions  []string `yaml:"permissions"`
}

// UserStore serves accounts from a yaml file and reloads the file when it
// changes on disk.
type UserStore struct {
	path string
	log  *zap.Logger

	mu         sync.RWMutex
	byUsername map[string]*User
	byID       map[string]*User

	watcher *fsnotify.Watcher
}

// NewUserStore loads the store from path.
func NewUserStore(path string, log *zap.Logger) (*UserStore, error) {
	if log == nil {
		log = zap.NewNop()
	}
	s := &UserStore{path: path, log: log}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Watch reloads the store whenever the backing file is rewritten. Stop the
// watcher with Close.
func (s *UserStore) Watch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// Watch the directory: editors replace the file, which would drop a
	// watch on the file itself.
	if err := w.Add(filepath.Dir(s.path)); err != nil {
		w.Close()
		return err
	}
	s.watcher = w
	go s.watchLoop(w)
	return nil
}

func (s *UserStore) watchLoop(w *fsnotify.Watcher) {
	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(s.path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if err := s.load(); err != nil {
				s.log.Warn("users file reload failed", zap.Error(err))
				continue
			}
			s.log.Info("users file reloaded", zap.String("path", s.path))
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			s.log.Warn("users file watcher error", zap.Error(err))
		}
	}
}

// Close stops the file watcher, if started.
func (s *UserStore) Close() error {
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}

func (s *UserStore) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	var doc struct {
		Users []User `yaml:"users"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse %s: %w", s.path, err)
	}

	byUsername := make(map[string]*User, len(doc.Users))
	byID := make(map[string]*User, len(doc.Users))
	for i := range doc.Users {
		u := &doc.Users[i]
		if u.Username == "" || u.PasswordHash == "" {
			return fmt.Errorf("%s: user %d: username and passwordHash required", s.path, i)
		}
		if u.UserID == "" {
			u.UserID = "u--" + uuid.NewString()
		}
		byUsername[u.Username] = u
		byID[u.UserID] = u
	}

	s.mu.Lock()
	s.byUsername = byUsername
	s.byID = byID
	s.mu.Unlock()
	return nil
}

// Authenticate verifies username and password against the stored bcrypt
// hash.
func (s *UserStore) Authenticate(username, password string) (*User, error) {
	s.mu.RLock()
	u := s.byUsername[username]
	s.mu.RUnlock()
	if u == nil {
		return nil, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

// Lookup returns the account with the given id.
func (s *UserStore) Lookup(userID string) (*User, error) {
	s.mu.RLock()
	u := s.byID[userID]
	s.mu.RUnlock()
	if u == nil {
		return nil, ErrUserNotFound
	}
	return u, nil
}
