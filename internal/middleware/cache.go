package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

const (
	responseMetaKey = "response_meta"
	cacheHitKey     = "cache_hit"
)

// Meta is per-response metadata rendered into the envelope.
type Meta = map[string]interface{}

// WithResponseMeta attaches a metadata map to the request and stamps the
// processing time once handlers return.
func WithResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Set(responseMetaKey, Meta{})
		c.Next()
		meta := ensureMeta(c)
		if _, exists := meta["processing_time_ms"]; !exists {
			meta["processing_time_ms"] = time.Since(start).Milliseconds()
		}
	}
}

// SetCacheHit marks whether the response came from the board cache.
func SetCacheHit(c *gin.Context, hit bool) {
	ensureMeta(c)[cacheHitKey] = hit
}

// ExtractMeta returns the metadata stored on the context, or nil.
func ExtractMeta(c *gin.Context) Meta {
	if c == nil {
		return nil
	}
	if meta, ok := c.Get(responseMetaKey); ok {
		if typed, ok := meta.(Meta); ok {
			return typed
		}
	}
	return nil
}

func ensureMeta(c *gin.Context) Meta {
	if meta := ExtractMeta(c); meta != nil {
		return meta
	}
	meta := Meta{}
	if c != nil {
		c.Set(responseMetaKey, meta)
	}
	return meta
}
