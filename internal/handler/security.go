package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/tifstore/topup-orders/internal/domain/auth"
)

// APIKeyHeader carries the caller's API key.
const APIKeyHeader = "api_key"

// SecurityHandler authenticates API requests via HMAC-SHA256 hashed API keys
// and attaches the resolved identity to the request context.
type SecurityHandler struct {
	apikeys auth.Repository
	pepper  []byte
}

// NewSecurityHandler creates a SecurityHandler with the given API key
// repository and HMAC pepper.
func NewSecurityHandler(apikeys auth.Repository, pepper []byte) *SecurityHandler {
	return &SecurityHandler{
		apikeys: apikeys,
		pepper:  pepper,
	}
}

// HashKey returns the hex HMAC-SHA256 of key under the pepper, as stored in
// the api_keys table.
func (s *SecurityHandler) HashKey(key string) string {
	mac := hmac.New(sha256.New, s.pepper)
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}

// Authenticate resolves the API key to an identity. The stored hash is
// compared in constant time against the computed one.
func (s *SecurityHandler) Authenticate(r *http.Request) (*auth.APIKeyInfo, bool) {
	key := r.Header.Get(APIKeyHeader)
	if key == "" {
		return nil, false
	}
	hexHash := s.HashKey(key)

	info, err := s.apikeys.FindByHash(r.Context(), hexHash)
	if err != nil {
		zctx.From(r.Context()).Debug("API key lookup failed", zap.Error(err))
		return nil, false
	}
	if subtle.ConstantTimeCompare([]byte(hexHash), []byte(info.KeyHash)) != 1 {
		return nil, false
	}
	return info, true
}

// Require wraps next so it only runs for keys that grant scope.
func (s *SecurityHandler) Require(scope string, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info, ok := s.Authenticate(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, codeUnauthorized, "missing or invalid api key")
			return
		}
		if !info.HasScope(scope) {
			writeError(w, http.StatusForbidden, codeUnauthorized, "api key lacks scope "+scope)
			return
		}
		next(w, r.WithContext(auth.WithIdentity(r.Context(), info)))
	})
}
