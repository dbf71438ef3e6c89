package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/digibo/backoffice/internal/crypto"
)

// loginFailedMessage is the display message for rejected credentials. One
// message for every failure mode: the client learns nothing about which
// part was wrong.
const loginFailedMessage = "Invalid username or password"

// authPayload is the identity shape shared by login, me and refresh.
type authPayload struct {
	UserID      string   `json:"userId"`
	Username    string   `json:"username"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

func payloadFor(u *User) authPayload {
	perms := make([]string, len(u.Permissions))
	for i, p := range u.Permissions {
		perms[i] = strings.ToUpper(p)
	}
	return authPayload{
		UserID:      u.UserID,
		Username:    u.Username,
		Roles:       append([]string(nil), u.Roles...),
		Permissions: perms,
	}
}

// Handlers serves the /api/auth surface.
type Handlers struct {
	auth *Auth
	keys *crypto.Keypair
	log  *zap.Logger
}

// NewHandlers wires the handler set.
func NewHandlers(auth *Auth, keys *crypto.Keypair, log *zap.Logger) *Handlers {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handlers{auth: auth, keys: keys, log: log}
}

// Login verifies the encrypted credentials and establishes a session.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"` // base64 RSA-OAEP ciphertext
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	password, err := h.keys.DecryptCredential(req.Password)
	if err != nil {
		h.log.Warn("credential decrypt failed", zap.Error(err))
		writeError(w, http.StatusUnauthorized, loginFailedMessage)
		return
	}
	user, err := h.auth.users.Authenticate(req.Username, password)
	if err != nil {
		h.log.Info("login rejected", zap.String("username", req.Username))
		writeError(w, http.StatusUnauthorized, loginFailedMessage)
		return
	}
	if err := h.auth.Establish(w, r, user); err != nil {
		h.log.Error("session save failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not establish session")
		return
	}

	h.log.Info("login",
		zap.String("username", user.Username),
		zap.Strings("roles", user.Roles))
	writeJSON(w, http.StatusOK, payloadFor(user))
}

// Me returns the identity bound to the request's session.
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.auth.CurrentUser(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "no active session")
		return
	}
	writeJSON(w, http.StatusOK, payloadFor(user))
}

// Refresh renews the session cookie and returns the identity.
func (h *Handlers) Refresh(w http.ResponseWriter, r *http.Request) {
	user, err := h.auth.Renew(w, r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "no active session")
		return
	}
	writeJSON(w, http.StatusOK, payloadFor(user))
}

// Logout drops the session. Always answers 200: the client clears its
// state regardless.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.Destroy(w, r); err != nil {
		h.log.Debug("session destroy failed", zap.Error(err))
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// PublicKey serves the SPKI public key clients encrypt credentials with.
func (h *Handlers) PublicKey(w http.ResponseWriter, r *http.Request) {
	spki, err := h.keys.PublicKeySPKI()
	if err != nil {
		h.log.Error("public key marshal failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "key unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"publicKey": spki})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}
