package cors

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestPolicyAllowed(t *testing.T) {
	p := NewPolicy([]string{"https://center.example/"})
	assert.True(t, p.Allowed("https://CENTER.example"))
	assert.True(t, p.Allowed(""))
	assert.False(t, p.Allowed("https://evil.example"))

	open := NewPolicy(nil)
	assert.True(t, open.Allowed("https://anything.example"))
}

func TestMiddlewarePreflight(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(New([]string{"https://center.example"}))
	r.POST("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "https://center.example")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://center.example", w.Header().Get("Access-Control-Allow-Origin"))
}
