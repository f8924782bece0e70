package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	corsMethods = "GET,POST,PUT,DELETE,OPTIONS"
	corsHeaders = "Authorization, Content-Type, If-None-Match, X-Caller-Id, X-Request-Id"
	corsExpose  = "ETag, Retry-After, X-Request-Id"
)

// CORS answers preflights and sets CORS headers for allowed origins. An entry may be an exact
// origin, "*" or a subdomain wildcard such as "https://*.example.org". Preflights from other
// origins get 204 without CORS headers, so the browser blocks the real request.
func CORS(allowedOrigins []string) gin.HandlerFunc {
	allow := newOriginMatcher(allowedOrigins)

	return func(c *gin.Context) {
		if origin := c.GetHeader("Origin"); origin != "" && allow(origin) {
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
			h.Set("Access-Control-Allow-Methods", corsMethods)
			h.Set("Access-Control-Allow-Headers", corsHeaders)
			h.Set("Access-Control-Expose-Headers", corsExpose)
			h.Set("Access-Control-Max-Age", "600")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func newOriginMatcher(allowed []string) func(string) bool {
	exact := make(map[string]struct{})
	var suffixes []struct{ scheme, suffix string }
	allowAll := false
	for _, o := range allowed {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		switch {
		case o == "":
		case o == "*":
			allowAll = true
		case strings.Contains(o, "://*."):
			scheme, host, _ := strings.Cut(o, "://*")
			suffixes = append(suffixes, struct{ scheme, suffix string }{scheme + "://", host})
		default:
			exact[o] = struct{}{}
		}
	}
	return func(origin string) bool {
		if allowAll {
			return true
		}
		if _, ok := exact[origin]; ok {
			return true
		}
		for _, s := range suffixes {
			rest, ok := strings.CutPrefix(origin, s.scheme)
			if ok && strings.HasSuffix(rest, s.suffix) && len(rest) > len(s.suffix) {
				return true
			}
		}
		return false
	}
}
