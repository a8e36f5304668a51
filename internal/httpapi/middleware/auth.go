package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// Keys holds the accepted API keys per access level. An admin key also grants
// read access.
type Keys struct {
	Public []string
	Admin  []string
}

type role int

const (
	roleNone role = iota
	roleReader
	roleAdmin
)

// roleOf maps a presented key to the highest level it unlocks.
func (k Keys) roleOf(key string) role {
	switch {
	case key == "":
		return roleNone
	case matches(key, k.Admin):
		return roleAdmin
	case matches(key, k.Public):
		return roleReader
	}
	return roleNone
}

func matches(key string, set []string) bool {
	found := false
	for _, k := range set {
		// no early exit, so timing does not reveal the match position
		if subtle.ConstantTimeCompare([]byte(k), []byte(key)) == 1 {
			found = true
		}
	}
	return found
}

// presentedKey reads the caller's key. Order: Authorization Bearer, X-API-Key,
// then the api_key query parameter for websocket clients that cannot set
// headers.
func presentedKey(r *http.Request) string {
	if h := r.Header.Get("Authorization"); len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	if k := strings.TrimSpace(r.Header.Get("X-API-Key")); k != "" {
		return k
	}
	return r.URL.Query().Get("api_key")
}

func deny(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}

// gate admits requests whose key reaches want. A missing or unknown key gets
// 401; a valid key below want gets 403. With open set every request passes.
func gate(keys Keys, want role, open bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if open {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := keys.roleOf(presentedKey(r))
			switch {
			case got >= want:
				next.ServeHTTP(w, r)
			case got == roleNone:
				deny(w, http.StatusUnauthorized, "unauthorized")
			default:
				deny(w, http.StatusForbidden, "forbidden")
			}
		})
	}
}

// RequireAny guards read endpoints. It is a pass-through when no keys of
// either kind are configured.
func RequireAny(keys Keys) func(http.Handler) http.Handler {
	return gate(keys, roleReader, len(keys.Public) == 0 && len(keys.Admin) == 0)
}

// RequireAdmin guards endpoints that start runs. Without admin keys it is a
// pass-through, even if public keys exist.
func RequireAdmin(keys Keys) func(http.Handler) http.Handler {
	return gate(keys, roleAdmin, len(keys.Admin) == 0)
}
