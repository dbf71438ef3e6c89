package authclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/digibo/backoffice/internal/crypto"
	"github.com/digibo/backoffice/internal/routes"
	"github.com/digibo/backoffice/internal/session"
)

type recordingNav struct {
	paths []string
}

func (n *recordingNav) NavigateTo(path string) { n.paths = append(n.paths, path) }

// fixture wires a Client against a fake auth backend.
type fixture struct {
	client *Client
	store  *session.Store
	router *routes.Router
	nav    *recordingNav
	keys   *crypto.Keypair
	mux    *http.ServeMux
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	kp, err := crypto.GenerateKeypair()
	require.NoError(t, err)

	f := &fixture{nav: &recordingNav{}, keys: kp, mux: http.NewServeMux()}
	f.mux.HandleFunc("/api/auth/public-key", func(w http.ResponseWriter, r *http.Request) {
		spki, err := kp.PublicKeySPKI()
		require.NoError(t, err)
		json.NewEncoder(w).Encode(map[string]string{"publicKey": spki})
	})

	srv := httptest.NewServer(f.mux)
	t.Cleanup(srv.Close)

	f.router = routes.NewRouter(routes.DefaultRegistry(), zap.NewNop())
	f.store = session.New(f.router, zap.NewNop())
	f.client, err = New(srv.URL+"/api/auth", f.store, f.nav, zap.NewNop())
	require.NoError(t, err)
	return f
}

func identityJSON(username string, roles []string) map[string]any {
	return map[string]any{
		"userId":      "u--" + username,
		"username":    username,
		"roles":       roles,
		"permissions": []string{"PROC_VIEW"},
	}
}

func TestLoginSuccessUpdatesSessionAndRoutes(t *testing.T) {
	f := newFixture(t)
	f.mux.HandleFunc("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		// The password must arrive encrypted, never in clear.
		plain, err := f.keys.DecryptCredential(req.Password)
		require.NoError(t, err)
		assert.Equal(t, "password2", plain)

		json.NewEncoder(w).Encode(identityJSON(req.Username, []string{"RBOFFORDERS"}))
	})

	id, err := f.client.Login(context.Background(), "user2", "password2")
	require.NoError(t, err)
	assert.Equal(t, "user2", id.Username)

	// By the time Login returns, the session and the route table agree.
	assert.True(t, f.store.IsAuthenticated())
	assert.True(t, f.router.IsRouteRegistered("orders"))
	assert.False(t, f.router.IsRouteRegistered("payments"))
}

func TestLoginRejectionCarriesServerMessage(t *testing.T) {
	f := newFixture(t)
	f.mux.HandleFunc("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"message": "Account locked"})
	})

	_, err := f.client.Login(context.Background(), "user1", "pw")

	var authErr *AuthenticationError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "Account locked", authErr.Message)
	assert.False(t, f.store.IsAuthenticated())
}

func TestLoginRejectionFallbackMessage(t *testing.T) {
	f := newFixture(t)
	f.mux.HandleFunc("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusUnauthorized)
	})

	_, err := f.client.Login(context.Background(), "user1", "pw")

	var authErr *AuthenticationError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, fallbackLoginMessage, authErr.Message)
}

func TestLoginFailsWhenKeyUnavailable(t *testing.T) {
	f := newFixture(t)
	// No /login handler registered: reaching it would 404 anyway, but the
	// key failure must abort the attempt first.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client, err := New(srv.URL+"/api/auth", f.store, f.nav, zap.NewNop())
	require.NoError(t, err)

	_, err = client.Login(context.Background(), "user1", "pw")
	assert.ErrorIs(t, err, crypto.ErrKeyUnavailable)
}

func TestBootstrapWithoutPriorSessionStaysQuiet(t *testing.T) {
	f := newFixture(t)
	f.mux.HandleFunc("/api/auth/me", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	f.client.Bootstrap(context.Background())

	assert.False(t, f.store.IsAuthenticated())
	// The 401 from the session probe must not have triggered a redirect.
	assert.Empty(t, f.nav.paths)
}

func TestBootstrapRecoversExistingSession(t *testing.T) {
	f := newFixture(t)
	f.mux.HandleFunc("/api/auth/me", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(identityJSON("user3", []string{"RBOPAYMENT"}))
	})

	f.client.Bootstrap(context.Background())

	require.True(t, f.store.IsAuthenticated())
	assert.Equal(t, "user3", f.store.CurrentUser().Username)
	assert.True(t, f.router.IsRouteRegistered("payments"))
}

func TestBootstrapTreatsEmptyUsernameAsLoggedOut(t *testing.T) {
	f := newFixture(t)
	f.mux.HandleFunc("/api/auth/me", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"userId": "", "username": ""})
	})

	f.client.Bootstrap(context.Background())
	assert.False(t, f.store.IsAuthenticated())
}

func TestLogoutAlwaysClearsSession(t *testing.T) {
	f := newFixture(t)
	f.mux.HandleFunc("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(identityJSON("user1", []string{"RBOFFORDERS"}))
	})
	f.mux.HandleFunc("/api/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := f.client.Login(context.Background(), "user1", "password1")
	require.NoError(t, err)
	require.True(t, f.store.IsAuthenticated())

	f.client.Logout(context.Background())

	assert.False(t, f.store.IsAuthenticated(), "backend failure must not leave the client authenticated")
	assert.Empty(t, f.router.ActiveNavItems())
	assert.Contains(t, f.nav.paths, "/login")
}

func TestRefreshReappliesIdentity(t *testing.T) {
	f := newFixture(t)
	f.mux.HandleFunc("/api/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(identityJSON("user1", []string{"RBOFFORDERS", "RBOMESSAGES"}))
	})

	id, err := f.client.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "user1", id.Username)
	assert.True(t, f.router.IsRouteRegistered("messages"))
}

func TestSupersededLoginResponseIsDiscarded(t *testing.T) {
	f := newFixture(t)
	firstArrived := make(chan struct{})
	release := make(chan struct{})
	f.mux.HandleFunc("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Username string `json:"username"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Username == "slow" {
			close(firstArrived)
			<-release
		}
		json.NewEncoder(w).Encode(identityJSON(req.Username, []string{"RBOFFORDERS"}))
	})

	errCh := make(chan error, 1)
	go func() {
		_, err := f.client.Login(context.Background(), "slow", "pw")
		errCh <- err
	}()
	<-firstArrived

	_, err := f.client.Login(context.Background(), "fast", "pw")
	require.NoError(t, err)

	close(release)
	assert.ErrorIs(t, <-errCh, ErrLoginSuperseded)
	assert.Equal(t, "fast", f.store.CurrentUser().Username, "stale response must not clobber the newer session")
}

func TestStaleLoginResponseCannotApplyAfterNewerAttempt(t *testing.T) {
	f := newFixture(t)

	// Two attempts in flight; the newer one completes first. The older
	// response must be rejected even though its request started earlier.
	staleSeq := f.client.loginSeq.Add(1)
	newerSeq := f.client.loginSeq.Add(1)

	_, err := f.client.applyLogin(newerSeq, &authResponse{
		UserID:   "u--fast",
		Username: "fast",
		Roles:    []string{"RBOPAYMENT"},
	})
	require.NoError(t, err)

	_, err = f.client.applyLogin(staleSeq, &authResponse{
		UserID:   "u--slow",
		Username: "slow",
		Roles:    []string{"RBOFFORDERS"},
	})
	assert.ErrorIs(t, err, ErrLoginSuperseded)

	assert.Equal(t, "fast", f.store.CurrentUser().Username)
	assert.True(t, f.router.IsRouteRegistered("payments"))
	assert.False(t, f.router.IsRouteRegistered("orders"))
}

func TestNormalizePermissions(t *testing.T) {
	t.Run("array passes through in order", func(t *testing.T) {
		got := normalizePermissions(json.RawMessage(`["PROC_EDIT","PROC_VIEW","PROC_APPROVE"]`))
		assert.Equal(t, []string{"PROC_EDIT", "PROC_VIEW", "PROC_APPROVE"}, got)
	})
	t.Run("set-like object yields sorted keys", func(t *testing.T) {
		got := normalizePermissions(json.RawMessage(`{"PROC_VIEW":true,"PROC_EDIT":true}`))
		assert.Equal(t, []string{"PROC_EDIT", "PROC_VIEW"}, got)
	})
	t.Run("absent value normalizes to empty", func(t *testing.T) {
		assert.Empty(t, normalizePermissions(nil))
	})
	t.Run("scalar normalizes to empty", func(t *testing.T) {
		assert.Empty(t, normalizePermissions(json.RawMessage(`"PROC_VIEW"`)))
	})
}
