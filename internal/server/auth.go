package server

import (
	"net/http"
	"time"

	"github.com/gorilla/sessions"
	"go.uber.org/zap"
)

const (
	sessionName   = "digibo-session"
	sessionMaxAge = 12 * time.Hour
)

// Auth issues and validates the cookie-backed server sessions.
type Auth struct {
	store sessions.Store
	users *UserStore
	log   *zap.Logger
}

// NewAuth creates an Auth signing cookies with sessionKey.
func NewAuth(sessionKey []byte, users *UserStore, log *zap.Logger) *Auth {
	if log == nil {
		log = zap.NewNop()
	}
	cs := sessions.NewCookieStore(sessionKey)
	cs.Options.HttpOnly = true
	cs.Options.Path = "/"
	cs.Options.SameSite = http.SameSiteLaxMode
	cs.Options.MaxAge = int(sessionMaxAge.Seconds())
	return &Auth{store: cs, users: users, log: log}
}

// Establish writes a session cookie binding the request to user.
func (a *Auth) Establish(w http.ResponseWriter, r *http.Request, user *User) error {
	sess, _ := a.store.Get(r, sessionName)
	sess.Values["authenticated"] = true
	sess.Values["userId"] = user.UserID
	return a.store.Save(r, w, sess)
}

// Destroy expires the session cookie. Destroying an absent session is not
// an error.
func (a *Auth) Destroy(w http.ResponseWriter, r *http.Request) error {
	sess, _ := a.store.Get(r, sessionName)
	sess.Values["authenticated"] = false
	delete(sess.Values, "userId")
	sess.Options.MaxAge = -1
	return a.store.Save(r, w, sess)
}

// CurrentUser resolves the request's session cookie to a stored account.
func (a *Auth) CurrentUser(r *http.Request) (*User, error) {
	sess, err := a.store.Get(r, sessionName)
	if err != nil {
		return nil, ErrSessionNotFound
	}
	authenticated, _ := sess.Values["authenticated"].(bool)
	userID, _ := sess.Values["userId"].(string)
	if !authenticated || userID == "" {
		return nil, ErrSessionNotFound
	}
	return a.users.Lookup(userID)
}

// Renew re-saves the session cookie, extending its lifetime, and returns
// the account it belongs to.
func (a *Auth) Renew(w http.ResponseWriter, r *http.Request) (*User, error) {
	user, err := a.CurrentUser(r)
	if err != nil {
		return nil, err
	}
	sess, _ := a.store.Get(r, sessionName)
	if err := a.store.Save(r, w, sess); err != nil {
		return nil, err
	}
	return user, nil
}
