package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gomart/order-engine/internal/domain/auth"
)

type mockKeyRepo struct {
	byHash map[string]*auth.APIKeyInfo
}

func (m *mockKeyRepo) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	info, ok := m.byHash[hash]
	if !ok {
		return nil, errors.New("api key not found")
	}
	return info, nil
}

func hashKey(pepper, key string) string {
	mac := hmac.New(sha256.New, []byte(pepper))
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}

func newAuthedHandler(pepper string, keys ...string) (http.Handler, *auth.Identity) {
	repo := &mockKeyRepo{byHash: make(map[string]*auth.APIKeyInfo)}
	for _, k := range keys {
		h := hashKey(pepper, k)
		repo.byHash[h] = &auth.APIKeyInfo{
			KeyHash: h,
			UserID:  "user-" + k,
			Email:   k + "@example.com",
			Name:    "key",
		}
	}

	var seen auth.Identity
	mw := NewAPIKeyAuth(repo, []byte(pepper))
	h := mw.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := auth.IdentityFromContext(r.Context())
		seen = id
		w.WriteHeader(http.StatusNoContent)
	}))
	return h, &seen
}

func TestAPIKeyAuth_BearerToken(t *testing.T) {
	h, seen := newAuthedHandler("pepper", "k1")

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	req.Header.Set("Authorization", "Bearer k1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "user-k1", seen.UserID)
	assert.Equal(t, "k1@example.com", seen.Email)
}

func TestAPIKeyAuth_LegacyHeader(t *testing.T) {
	h, seen := newAuthedHandler("pepper", "k1")

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	req.Header.Set("api_key", "k1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "user-k1", seen.UserID)
}

func TestAPIKeyAuth_MissingKey(t *testing.T) {
	h, _ := newAuthedHandler("pepper", "k1")

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPIKeyAuth_UnknownKey(t *testing.T) {
	h, _ := newAuthedHandler("pepper", "k1")

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPIKeyAuth_WrongPepperRejects(t *testing.T) {
	repo := &mockKeyRepo{byHash: map[string]*auth.APIKeyInfo{
		hashKey("other-pepper", "k1"): {KeyHash: hashKey("other-pepper", "k1"), UserID: "user-k1"},
	}}
	mw := NewAPIKeyAuth(repo, []byte("pepper"))
	h := mw.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	req.Header.Set("Authorization", "Bearer k1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, bearerToken(req))

	req.Header.Set("Authorization", "Bearer abc")
	assert.Equal(t, "abc", bearerToken(req))

	req.Header.Set("Authorization", "bearer abc")
	assert.Equal(t, "abc", bearerToken(req))

	req.Header.Set("Authorization", "Basic abc")
	assert.Empty(t, bearerToken(req))

	req.Header.Set("Authorization", "Bearer")
	assert.Empty(t, bearerToken(req))
}
