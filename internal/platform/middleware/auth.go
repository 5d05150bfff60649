package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	id "capcall/pkg/domain"
	"capcall/pkg/requestcontext"
)

// Validator verifies bearer tokens and extracts the caller party.
type Validator struct {
	signingKey []byte
}

// NewValidator builds an HMAC token validator.
func NewValidator(signingKey string) *Validator {
	return &Validator{signingKey: []byte(signingKey)}
}

// Validate parses and verifies the token and returns the party bound to it.
func (v *Validator) Validate(tokenString string) (id.PartyID, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.signingKey, nil
	})
	if err != nil {
		return id.PartyID{}, fmt.Errorf("parse token: %w", err)
	}
	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return id.PartyID{}, fmt.Errorf("token has no subject")
	}
	party, err := id.ParsePartyID(sub)
	if err != nil {
		return id.PartyID{}, fmt.Errorf("token subject is not a party id: %w", err)
	}
	return party, nil
}

// Token issues a signed token for a party. Used by tests and dev tooling; a
// production deployment issues tokens from its own identity provider.
func (v *Validator) Token(party id.PartyID) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": party.String(),
	})
	return token.SignedString(v.signingKey)
}

// RequireAuth binds the authenticated party from the Authorization header to
// the request context. Requests without a valid bearer token are rejected.
func RequireAuth(validator *Validator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			authHeader := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok {
				logger.WarnContext(ctx, "unauthorized request - missing bearer token")
				unauthorized(w)
				return
			}
			party, err := validator.Validate(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized request - invalid token", "error", err)
				unauthorized(w)
				return
			}
			next.ServeHTTP(w, r.WithContext(requestcontext.WithCaller(ctx, party)))
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
}
