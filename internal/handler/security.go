package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/gomart/order-engine/internal/domain/auth"
)

// APIKeyAuth authenticates requests via HMAC-SHA256 hashed API keys and
// attaches the resolved identity to the request context. Downstream code
// trusts that identity and never re-authenticates.
type APIKeyAuth struct {
	apikeys auth.Repository
	pepper  []byte
}

// NewAPIKeyAuth creates the middleware with the given API key repository and
// HMAC pepper.
func NewAPIKeyAuth(apikeys auth.Repository, pepper []byte) *APIKeyAuth {
	return &APIKeyAuth{
		apikeys: apikeys,
		pepper:  pepper,
	}
}

// Middleware rejects requests without a valid API key with 401. The key is
// read from "Authorization: Bearer <key>" or the legacy api_key header.
func (a *APIKeyAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := bearerToken(r)
		if key == "" {
			key = r.Header.Get("api_key")
		}
		if key == "" {
			writeErrorKind(r.Context(), w, http.StatusUnauthorized, "Unauthorized", "API key required")
			return
		}

		mac := hmac.New(sha256.New, a.pepper)
		mac.Write([]byte(key))
		hash := mac.Sum(nil)

		info, err := a.apikeys.FindByHash(r.Context(), hex.EncodeToString(hash))
		if err != nil {
			writeErrorKind(r.Context(), w, http.StatusUnauthorized, "Unauthorized", "invalid API key")
			return
		}

		// The stored hash must match the computed one in constant time.
		stored, err := hex.DecodeString(info.KeyHash)
		if err != nil || subtle.ConstantTimeCompare(hash, stored) != 1 {
			writeErrorKind(r.Context(), w, http.StatusUnauthorized, "Unauthorized", "invalid API key")
			return
		}

		ctx := auth.WithIdentity(r.Context(), auth.Identity{
			UserID: info.UserID,
			Email:  info.Email,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
