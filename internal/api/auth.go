package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalithlochan/fellowship/internal/db"
)

type ctxKey string

const userKey ctxKey = "user"

// UserLoader loads the authenticated user.
type UserLoader interface {
	GetUser(ctx context.Context, id uuid.UUID) (*db.User, error)
}

// RequireAuth validates an HS256 bearer token, loads the user named by the
// userID claim (or sub) and stores it in the request context.
func RequireAuth(secret []byte, users UserLoader, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				writeProblem(w, http.StatusUnauthorized, "unauthorized", "Unauthorized", "missing bearer token")
				return
			}

			userID, err := parseToken(raw, secret)
			if err != nil {
				logger.Debug("rejected token", zap.Error(err))
				writeProblem(w, http.StatusUnauthorized, "unauthorized", "Unauthorized", "invalid token")
				return
			}

			user, err := users.GetUser(r.Context(), userID)
			if err != nil {
				if !errors.Is(err, db.ErrNotFound) {
					logger.Error("failed to load authenticated user", zap.Error(err))
				}
				writeProblem(w, http.StatusUnauthorized, "unauthorized", "Unauthorized", "unknown user")
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, user)))
		})
	}
}

// UserFromContext returns the user stored by RequireAuth.
func UserFromContext(ctx context.Context) (*db.User, bool) {
	u, ok := ctx.Value(userKey).(*db.User)
	return u, ok && u != nil
}

func parseToken(raw string, secret []byte) (uuid.UUID, error) {
	token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return uuid.Nil, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return uuid.Nil, errors.New("bad claims")
	}

	sub, _ := claims["userID"].(string)
	if sub == "" {
		sub, _ = claims["sub"].(string)
	}
	if sub == "" {
		return uuid.Nil, errors.New("no user id claim")
	}

	id, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, fmt.Errorf("user id claim: %w", err)
	}
	return id, nil
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
