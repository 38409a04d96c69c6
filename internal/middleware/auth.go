package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// CookieName holds the session token issued at login.
	CookieName = "session"
	sessionTTL = 30 * 24 * time.Hour
)

// Auth keeps the tokens issued at login and guards handlers with them.
type Auth struct {
	mu     sync.Mutex
	tokens map[string]time.Time
	now    func() time.Time
}

func NewAuth() *Auth {
	return &Auth{
		tokens: make(map[string]time.Time),
		now:    time.Now,
	}
}

// Issue creates a new token valid for 30 days.
func (a *Auth) Issue() string {
	token := uuid.NewString()
	a.mu.Lock()
	a.tokens[token] = a.now().Add(sessionTTL)
	a.mu.Unlock()
	return token
}

func (a *Auth) Revoke(token string) {
	a.mu.Lock()
	delete(a.tokens, token)
	a.mu.Unlock()
}

// Valid reports whether token was issued and has not expired.
func (a *Auth) Valid(token string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	expires, ok := a.tokens[token]
	if !ok {
		return false
	}
	if a.now().After(expires) {
		delete(a.tokens, token)
		return false
	}
	return true
}

// TTL is the lifetime of issued tokens.
func (a *Auth) TTL() time.Duration {
	return sessionTTL
}

// Middleware lets the login page, auth endpoints and static assets through
// and requires a valid session cookie for everything else.
func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/login" ||
			r.URL.Path == "/auth/login" ||
			strings.HasPrefix(r.URL.Path, "/static/") {
			next.ServeHTTP(w, r)
			return
		}

		cookie, err := r.Cookie(CookieName)
		if err != nil || !a.Valid(cookie.Value) {
			// API clients get 401, browsers are sent to the login page
			if strings.HasPrefix(r.URL.Path, "/api/") ||
				r.Header.Get("X-Requested-With") == "XMLHttpRequest" ||
				r.Header.Get("Content-Type") == "application/json" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}
