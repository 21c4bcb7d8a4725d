package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/dabestan-dev/dabestan-api/internal/models"
	"github.com/dabestan-dev/dabestan-api/internal/service"
)

type cachedWriter struct {
	gin.ResponseWriter
	body []byte
}

func (w *cachedWriter) Write(data []byte) (int, error) {
	w.body = append(w.body, data...)
	return w.ResponseWriter.Write(data)
}

// CacheResponse serves repeated GET requests from redis. The key folds in
// the role so a parent never sees an admin's cached payload. A nil client
// disables caching.
func CacheResponse(client *redis.Client, metricsSvc *service.MetricsService, ttl time.Duration) gin.HandlerFunc {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return func(c *gin.Context) {
		if client == nil || c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		role := ""
		if claims, ok := c.Get(ContextUserKey); ok {
			if user, ok := claims.(*models.JWTClaims); ok {
				role = string(user.Role)
			}
		}
		sum := sha256.Sum256([]byte(role + "|" + c.Request.URL.RequestURI()))
		key := "httpcache:" + hex.EncodeToString(sum[:16])

		start := time.Now()
		cached, err := client.Get(c.Request.Context(), key).Bytes()
		if err == nil {
			metricsSvc.RecordCacheOperation(true, time.Since(start))
			c.Data(http.StatusOK, "application/json; charset=utf-8", cached)
			c.Abort()
			return
		}
		metricsSvc.RecordCacheOperation(false, time.Since(start))

		writer := &cachedWriter{ResponseWriter: c.Writer}
		c.Writer = writer
		c.Next()

		if c.Writer.Status() == http.StatusOK && len(writer.body) > 0 {
			_ = client.Set(c.Request.Context(), key, writer.body, ttl).Err()
		}
	}
}
