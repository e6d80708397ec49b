package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/plugscrape/models"
)

const apiKeyContextKey = "api_key"

// Auth returns API-key authentication middleware. Keys are accepted as
//
//	X-API-Key: <key>
//	Authorization: Bearer <key>
//
// The accepted key becomes the caller's identity: sessions are owned by the
// key that opened them and rate limits are counted per key. With no keys
// configured the middleware lets everything through anonymously.
func Auth(apiKeys []string) gin.HandlerFunc {
	var digests [][sha256.Size]byte
	for _, k := range apiKeys {
		if k != "" {
			digests = append(digests, sha256.Sum256([]byte(k)))
		}
	}
	if len(digests) == 0 {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		key := presentedKey(c.Request)
		if key == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.NewErrorResponse(
				models.ErrCodeUnauthorized,
				"missing API key: provide X-API-Key header or Authorization: Bearer <key>",
			))
			return
		}
		if !knownKey(digests, key) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.NewErrorResponse(models.ErrCodeUnauthorized, "invalid API key"))
			return
		}
		c.Set(apiKeyContextKey, key)
		c.Next()
	}
}

// APIKey returns the key Auth accepted for this request, or "" when the
// server runs without keys.
func APIKey(c *gin.Context) string {
	return c.GetString(apiKeyContextKey)
}

// knownKey compares against every configured key in constant time.
func knownKey(digests [][sha256.Size]byte, key string) bool {
	d := sha256.Sum256([]byte(key))
	found := 0
	for i := range digests {
		found |= subtle.ConstantTimeCompare(digests[i][:], d[:])
	}
	return found == 1
}

func presentedKey(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return key
	}
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}
