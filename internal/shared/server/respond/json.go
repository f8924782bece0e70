package respond

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// JSON writes payload with the given status.
func JSON(c *gin.Context, status int, payload any) {
	c.JSON(status, payload)
}

// OK writes a 200 JSON response.
func OK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

// NoContent writes a bare 204.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Markdown writes body as text/markdown.
func Markdown(c *gin.Context, body string) {
	c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(body))
}
