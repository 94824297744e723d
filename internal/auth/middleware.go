package auth

import (
	"errors"
	"net/http"
	"strings"
)

// ErrorWriter renders an auth failure.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

type Authenticator struct {
	verifier *Verifier
	onError  ErrorWriter
}

func NewAuthenticator(v *Verifier, onError ErrorWriter) *Authenticator {
	if onError == nil {
		onError = func(w http.ResponseWriter, _ *http.Request, err error) {
			http.Error(w, err.Error(), StatusFor(err))
		}
	}
	return &Authenticator{verifier: v, onError: onError}
}

// Require resolves the bearer token into an Identity on the request context.
func (a *Authenticator) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearer(r.Header.Get("Authorization"))
		if !ok {
			a.onError(w, r, ErrUnauthenticated)
			return
		}
		id, err := a.verifier.Verify(raw)
		if err != nil {
			a.onError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

// RequireAdmin must run after Require.
func (a *Authenticator) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFromContext(r.Context())
		if !ok {
			a.onError(w, r, ErrUnauthenticated)
			return
		}
		if !id.IsAdmin() {
			a.onError(w, r, ErrForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// StatusFor maps auth errors to HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, ErrForbidden), errors.Is(err, ErrWrongTokenType):
		return http.StatusForbidden
	default:
		return http.StatusUnauthorized
	}
}

func bearer(h string) (string, bool) {
	const prefix = "bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	tok := strings.TrimSpace(h[len(prefix):])
	return tok, tok != ""
}
