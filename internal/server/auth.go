package server

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/katelyatv/internal/models"
	"github.com/desertthunder/katelyatv/internal/shared"
	"github.com/golang-jwt/jwt/v5"
)

// CookieName is the name of the session cookie.
const CookieName = "auth"

const issuer = "katelyatv"

// Claims are the signed contents of the session cookie. The subject is the username.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Username returns the authenticated account name.
func (c *Claims) Username() string {
	return c.Subject
}

// IsOwner reports whether the session belongs to the owner account.
func (c *Claims) IsOwner() bool {
	return c.Role == models.RoleOwner
}

// ClaimsFrom returns the claims stored by [Authenticator.RequireAuth].
func ClaimsFrom(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey).(*Claims)
	return c, ok
}

// Authenticator issues and verifies session cookies and checks the owner's environment credentials.
type Authenticator struct {
	secret        []byte
	ttl           time.Duration
	ownerName     string
	ownerPassword string
	now           func() time.Time
}

// NewAuthenticator creates an [Authenticator] from the auth config.
//
// When no secret is configured a random one is generated, which invalidates every session on restart.
func NewAuthenticator(cfg shared.AuthConfig, logger *log.Logger) (*Authenticator, error) {
	secret := cfg.Secret
	if secret == "" {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("failed to generate auth secret: %w", err)
		}
		secret = base64.RawURLEncoding.EncodeToString(buf)
		if logger != nil {
			logger.Warn("AUTH_SECRET not set, using a random secret; sessions will not survive a restart")
		}
	}

	owner := cfg.OwnerName
	if owner == "" {
		owner = shared.DefaultOwnerName
	}

	return &Authenticator{
		secret:        []byte(secret),
		ttl:           cfg.TokenTTL(),
		ownerName:     owner,
		ownerPassword: cfg.OwnerPassword,
		now:           time.Now,
	}, nil
}

// OwnerName returns the configured owner account name.
func (a *Authenticator) OwnerName() string {
	return a.ownerName
}

// RoleOf derives the role of an account from its name.
func (a *Authenticator) RoleOf(username string) string {
	if username == a.ownerName {
		return models.RoleOwner
	}
	return models.RoleUser
}

// CheckOwner reports whether the credentials match the owner's environment credentials.
// An unset owner password never matches.
func (a *Authenticator) CheckOwner(username, password string) bool {
	if a.ownerPassword == "" || username != a.ownerName {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(password), []byte(a.ownerPassword)) == 1
}

// Issue signs a session token for username.
func (a *Authenticator) Issue(username string) (string, time.Time, error) {
	now := a.now()
	expires := now.Add(a.ttl)
	claims := Claims{
		Role: a.RoleOf(username),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			Issuer:    issuer,
			ID:        shared.GenerateID(),
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expires, nil
}

// Verify parses a session token and checks its signature, expiry and issuer.
func (a *Authenticator) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(a.now), jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, shared.ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", shared.ErrNotAuthenticated, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, shared.ErrNotAuthenticated
	}
	// The role is re-derived so a changed owner name revokes stale owner sessions.
	claims.Role = a.RoleOf(claims.Subject)
	return claims, nil
}

// SetCookie writes the session cookie.
func (a *Authenticator) SetCookie(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		MaxAge:   int(a.ttl.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie expires the session cookie.
func (a *Authenticator) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// tokenFrom reads the session cookie, falling back to a bearer Authorization header.
func tokenFrom(r *http.Request) string {
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		return c.Value
	}

	h := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(h, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

// RequireAuth rejects requests without a valid session with 401 and stores the [Claims] in the
// request context otherwise.
func (a *Authenticator) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := tokenFrom(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, shared.ErrNotAuthenticated.Error())
			return
		}

		claims, err := a.Verify(token)
		if err != nil {
			if errors.Is(err, shared.ErrTokenExpired) {
				a.ClearCookie(w)
				writeError(w, http.StatusUnauthorized, shared.ErrTokenExpired.Error())
				return
			}
			writeError(w, http.StatusUnauthorized, shared.ErrNotAuthenticated.Error())
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey, claims)))
	})
}

// RequireOwner is [Authenticator.RequireAuth] restricted to the owner account; others get 403.
func (a *Authenticator) RequireOwner(next http.Handler) http.Handler {
	return a.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, _ := ClaimsFrom(r.Context())
		if claims == nil || !claims.IsOwner() {
			writeError(w, http.StatusForbidden, shared.ErrForbidden.Error())
			return
		}
		next.ServeHTTP(w, r)
	}))
}
