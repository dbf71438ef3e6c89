package server

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/digibo/backoffice/internal/config"
	"github.com/digibo/backoffice/internal/crypto"
)

// Server bundles the auth backend: the account store, the keypair, and the
// HTTP listener.
type Server struct {
	cfg   config.Config
	users *UserStore
	http  *http.Server
	log   *zap.Logger
}

// New wires the backend from configuration.
func New(cfg config.Config, log *zap.Logger) (*Server, error) {
	if log == nil {
		log = zap.NewNop()
	}

	users, err := NewUserStore(cfg.UsersFile, log)
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	if err := users.Watch(); err != nil {
		log.Warn("users file watching disabled", zap.Error(err))
	}

	keys, err := crypto.LoadOrCreateKeypair(cfg.KeyFile)
	if err != nil {
		users.Close()
		return nil, fmt.Errorf("load keypair: %w", err)
	}

	sessionKey := []byte(cfg.SessionKey)
	if len(sessionKey) == 0 {
		// Ephemeral key: sessions will not survive a restart.
		log.Warn("no session key configured, using an ephemeral one")
		sessionKey = randomKey()
	}

	auth := NewAuth(sessionKey, users, log)
	handlers := NewHandlers(auth, keys, log)

	return &Server{
		cfg:   cfg,
		users: users,
		log:   log,
		http: &http.Server{
			Addr:              cfg.Listen,
			Handler:           NewRouter(handlers, log),
			ReadHeaderTimeout: 5 * time.Second,
		},
	}, nil
}

// Handler exposes the assembled routes, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	defer s.users.Close()

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("auth backend listening", zap.String("addr", s.cfg.Listen))
		err := s.http.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.http.Shutdown(shutdownCtx)
		return <-errCh
	case err := <-errCh:
		return err
	}
}

func randomKey() []byte {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		panic(err)
	}
	return key
}
