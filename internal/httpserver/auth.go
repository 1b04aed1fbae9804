package httpserver

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/postsmith/postsmith/internal/config"
)

// Verifier authenticates write requests and resolves the acting account.
type Verifier struct {
	cfg config.Config
}

func NewVerifier(cfg config.Config) *Verifier {
	return &Verifier{cfg: cfg}
}

// VerifyRequest returns the authenticated account ID. The debug-token path
// exists for local development only; config.Load rejects it in production.
func (v *Verifier) VerifyRequest(r *http.Request) (uuid.UUID, error) {
	if v.cfg.AllowDebugToken {
		if token := r.Header.Get("X-Debug-Token"); token != "" && token == v.cfg.DebugToken {
			account, err := uuid.Parse(r.Header.Get("X-Account-ID"))
			if err != nil {
				return uuid.Nil, errors.New("debug requests need a valid X-Account-ID header")
			}
			return account, nil
		}
	}

	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return uuid.Nil, errors.New("bearer token required")
	}
	tokenStr := strings.TrimPrefix(authHeader, "Bearer ")

	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return []byte(v.cfg.JWTSecret), nil
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("token parse error: %w", err)
	}
	if !token.Valid {
		return uuid.Nil, errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return uuid.Nil, errors.New("invalid claims")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return uuid.Nil, errors.New("token missing subject")
	}
	account, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, errors.New("token subject is not an account id")
	}
	return account, nil
}
