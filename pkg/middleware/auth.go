package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// AdminRole is the role claim an admin JWT must carry.
const AdminRole = "admin"

// AdminAuthConfig selects how admin requests authenticate. A request passes
// when its bearer credential equals Token or is an HS256 JWT signed with
// JWTSecret carrying the admin role and an expiry. With both empty the check
// is disabled, which is only meant for local development.
type AdminAuthConfig struct {
	Token     string
	JWTSecret string
}

// AdminAuth guards admin routes with a static bearer token and/or JWTs.
func AdminAuth(cfg AdminAuthConfig, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if cfg.Token == "" && cfg.JWTSecret == "" {
			return next
		}
		token := []byte(cfg.Token)
		secret := []byte(cfg.JWTSecret)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scheme, presented, ok := strings.Cut(r.Header.Get("Authorization"), " ")
			if !ok || !strings.EqualFold(scheme, "bearer") || presented == "" {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or malformed authorization header")
				return
			}

			if len(token) > 0 && subtle.ConstantTimeCompare([]byte(presented), token) == 1 {
				next.ServeHTTP(w, r)
				return
			}
			if len(secret) > 0 {
				err := validateAdminJWT(presented, secret)
				if err == nil {
					next.ServeHTTP(w, r)
					return
				}
				logger.Warn("invalid admin JWT",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
			}
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid admin credentials")
		})
	}
}

func validateAdminJWT(raw string, secret []byte) error {
	token, err := jwt.Parse(raw, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return errors.New("unexpected claims type")
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return err
	}
	if exp == nil {
		return errors.New("token has no expiry")
	}
	if role, _ := claims["role"].(string); role != AdminRole {
		return errors.New("token lacks the admin role")
	}
	return nil
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="searchsync"`)
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
