package cors

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Policy answers whether a browser origin may call the API.
// An empty allow list admits every origin.
type Policy struct {
	allowAll bool
	origins  map[string]struct{}
}

// NewPolicy builds a Policy from configured origins.
func NewPolicy(allowedOrigins []string) *Policy {
	p := &Policy{
		allowAll: len(allowedOrigins) == 0,
		origins:  make(map[string]struct{}, len(allowedOrigins)),
	}
	for _, origin := range allowedOrigins {
		if origin == "*" {
			p.allowAll = true
			continue
		}
		p.origins[normalize(origin)] = struct{}{}
	}
	return p
}

// Allowed reports whether origin passes the policy. Requests without an
// Origin header are same-origin or non-browser and always pass.
func (p *Policy) Allowed(origin string) bool {
	if origin == "" || p.allowAll {
		return true
	}
	_, ok := p.origins[normalize(origin)]
	return ok
}

// CheckRequest adapts the policy to websocket upgraders.
func (p *Policy) CheckRequest(r *http.Request) bool {
	return p.Allowed(r.Header.Get("Origin"))
}

// Middleware applies the policy to HTTP requests and answers preflights.
func (p *Policy) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		origin := c.GetHeader("Origin")
		switch {
		case origin != "" && p.Allowed(origin):
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
		case origin == "" && p.allowAll:
			h.Set("Access-Control-Allow-Origin", "*")
		}

		h.Set("Vary", "Origin")
		h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Requested-With, X-Request-ID")
		h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		h.Set("Access-Control-Max-Age", "600")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// New is shorthand for NewPolicy(allowedOrigins).Middleware().
func New(allowedOrigins []string) gin.HandlerFunc {
	return NewPolicy(allowedOrigins).Middleware()
}

func normalize(origin string) string {
	return strings.ToLower(strings.TrimRight(strings.TrimSpace(origin), "/"))
}
