package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

const metaKey = "response_meta"

// WithResponseMeta seeds a metadata map for the request that ends up in
// the response envelope's meta block. The register read side reports its
// cache outcome into it; every response gets its processing time.
func WithResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Set(metaKey, map[string]interface{}{})
		c.Next()

		meta := metaFor(c)
		if _, ok := meta["processing_time_ms"]; !ok {
			meta["processing_time_ms"] = time.Since(start).Milliseconds()
		}
	}
}

// SetCacheHit records whether the payload came out of the cache.
func SetCacheHit(c *gin.Context, hit bool) {
	metaFor(c)["cache_hit"] = hit
}

// ExtractMeta returns the request's metadata map, nil when none was seeded.
func ExtractMeta(c *gin.Context) map[string]interface{} {
	if c == nil {
		return nil
	}
	if v, ok := c.Get(metaKey); ok {
		if meta, ok := v.(map[string]interface{}); ok {
			return meta
		}
	}
	return nil
}

// metaFor fetches the map, creating it for contexts that never passed
// through WithResponseMeta (direct handler tests).
func metaFor(c *gin.Context) map[string]interface{} {
	if c == nil {
		return map[string]interface{}{}
	}
	if v, ok := c.Get(metaKey); ok {
		if meta, ok := v.(map[string]interface{}); ok {
			return meta
		}
	}
	meta := make(map[string]interface{})
	c.Set(metaKey, meta)
	return meta
}
