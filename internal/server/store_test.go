package server

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func hashFor(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func writeUsersFile(t *testing.T, dir string, users string) string {
	t.Helper()
	path := filepath.Join(dir, "users.yaml")
	require.NoError(t, os.WriteFile(path, []byte(users), 0600))
	return path
}

func TestUserStoreAuthenticate(t *testing.T) {
	path := writeUsersFile(t, t.TempDir(), fmt.Sprintf(`
users:
  - userId: u--1
    username: user2
    passwordHash: %q
    roles: [RBOFFORDERS]
    permissions: [PROC_VIEW]
`, hashFor(t, "password2")))

	store, err := NewUserStore(path, nil)
	require.NoError(t, err)

	u, err := store.Authenticate("user2", "password2")
	require.NoError(t, err)
	assert.Equal(t, "u--1", u.UserID)
	assert.Equal(t, []string{"RBOFFORDERS"}, u.Roles)

	_, err = store.Authenticate("user2", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = store.Authenticate("nobody", "password2")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestUserStoreLookup(t *testing.T) {
	path := writeUsersFile(t, t.TempDir(), fmt.Sprintf(`
users:
  - userId: u--1
    username: user1
    passwordHash: %q
`, hashFor(t, "pw")))

	store, err := NewUserStore(path, nil)
	require.NoError(t, err)

	u, err := store.Lookup("u--1")
	require.NoError(t, err)
	assert.Equal(t, "user1", u.Username)

	_, err = store.Lookup("u--missing")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserStoreAssignsMissingIDs(t *testing.T) {
	path := writeUsersFile(t, t.TempDir(), fmt.Sprintf(`
users:
  - username: user1
    passwordHash: %q
`, hashFor(t, "pw")))

	store, err := NewUserStore(path, nil)
	require.NoError(t, err)

	u, err := store.Authenticate("user1", "pw")
	require.NoError(t, err)
	assert.NotEmpty(t, u.UserID)
}

func TestUserStoreRejectsIncompleteRecords(t *testing.T) {
	path := writeUsersFile(t, t.TempDir(), `
users:
  - username: user1
`)
	_, err := NewUserStore(path, nil)
	assert.Error(t, err)
}

func TestUserStoreReloadsOnFileChange(t *testing.T) {
	dir := t.TempDir()
	path := writeUsersFile(t, dir, fmt.Sprintf(`
users:
  - username: user1
    passwordHash: %q
`, hashFor(t, "pw")))

	store, err := NewUserStore(path, nil)
	require.NoError(t, err)
	require.NoError(t, store.Watch())
	defer store.Close()

	_, err = store.Authenticate("user9", "pw9")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	writeUsersFile(t, dir, fmt.Sprintf(`
users:
  - username: user9
    passwordHash: %q
`, hashFor(t, "pw9")))

	assert.Eventually(t, func() bool {
		_, err := store.Authenticate("user9", "pw9")
		return err == nil
	}, 3*time.Second, 50*time.Millisecond, "store should pick up the rewritten file")
}
