package authclient

import (
	"encoding/json"
	"sort"

	"github.com/digibo/backoffice/internal/session"
)

// authResponse is the identity payload returned by /login, /me and
// /refresh. Permissions stays raw because backends disagree on its shape.
type authResponse struct {
	UserID      string          `json:"userId"`
	Username    string          `json:"username"`
	Roles       []string        `json:"roles"`
	Permissions json.RawMessage `json:"permissions"`
}

func (a *authResponse) identity() session.Identity {
	return session.Identity{
		UserID:      a.UserID,
		Username:    a.Username,
		Roles:       append([]string(nil), a.Roles...),
		Permissions: normalizePermissions(a.Permissions),
	}
}

// normalizePermissions coerces the wire value into an ordered sequence. An
// array passes through in server order; a set-like object contributes its
// keys, sorted for determinism; anything else normalizes to empty.
func normalizePermissions(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	var set map[string]json.RawMessage
	if err := json.Unmarshal(raw, &set); err == nil {
		keys := make([]string, 0, len(set))
		for k := range set {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return keys
	}
	return nil
}
