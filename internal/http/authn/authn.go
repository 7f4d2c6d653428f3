// Package authn resolves the bearer token into an explicit Actor that the
// engine operations receive; nothing downstream reads ambient request state.
package authn

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/instavisa/instavisa/internal/application"
)

type contextKey struct{}

var actorKey contextKey

// Claims is the token payload issued at login.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

type Middleware struct {
	secret    []byte
	blacklist *redis.Client // nil disables revocation checks
}

// New builds the middleware. blacklist may be nil; when set, tokens present
// in it (logged-out sessions) are rejected.
func New(secret string, blacklist *redis.Client) *Middleware {
	return &Middleware{
		secret:    []byte(secret),
		blacklist: blacklist,
	}
}

// Require authenticates the request and injects the Actor into the context.
func (m *Middleware) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, err := m.authenticate(r)
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
	})
}

// RequireAdmin is Require plus a role check.
func (m *Middleware) RequireAdmin(next http.Handler) http.Handler {
	return m.Require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, _ := ActorFrom(r.Context())
		if actor.Role != application.RoleAdmin {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	}))
}

func (m *Middleware) authenticate(r *http.Request) (application.Actor, error) {
	header := r.Header.Get("Authorization")

	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || raw == "" {
		return application.Actor{}, errors.New("missing bearer token")
	}

	if m.blacklist != nil {
		if _, err := m.blacklist.Get(r.Context(), blacklistKey(raw)).Result(); err == nil {
			return application.Actor{}, errors.New("token revoked")
		} else if !errors.Is(err, redis.Nil) {
			return application.Actor{}, fmt.Errorf("checking token revocation: %w", err)
		}
	}

	var claims Claims

	token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}

		return m.secret, nil
	})
	if err != nil || !token.Valid {
		return application.Actor{}, fmt.Errorf("parsing token: %w", err)
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return application.Actor{}, fmt.Errorf("parsing subject: %w", err)
	}

	role := application.Role(claims.Role)
	if role != application.RoleAdmin {
		role = application.RoleApplicant
	}

	return application.Actor{ID: id, Role: role}, nil
}

func blacklistKey(token string) string {
	return "authn:blacklist:" + token
}

// WithActor returns a context carrying the actor.
func WithActor(ctx context.Context, actor application.Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFrom extracts the actor set by Require.
func ActorFrom(ctx context.Context) (application.Actor, bool) {
	actor, ok := ctx.Value(actorKey).(application.Actor)
	return actor, ok
}
