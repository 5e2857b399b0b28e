package api

import (
	"dispatch-map-service/internal/api/handlers"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// requireBearer rejects requests without a valid HS256 bearer token signed with secret.
func requireBearer(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			raw, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || strings.TrimSpace(raw) == "" {
				handlers.WriteError(w, r, http.StatusUnauthorized, "unauthenticated", "missing bearer token")
				return
			}

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(strings.TrimSpace(raw), claims, func(*jwt.Token) (any, error) {
				return secret, nil
			}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
			if err != nil || !token.Valid {
				zerolog.Ctx(r.Context()).Debug().Err(err).Msg("bearer token rejected")
				handlers.WriteError(w, r, http.StatusUnauthorized, "unauthenticated", "invalid bearer token")
				return
			}

			log := zerolog.Ctx(r.Context()).With().Str("user_id", claims.UserID).Logger()
			next.ServeHTTP(w, r.WithContext(log.WithContext(r.Context())))
		})
	}
}
