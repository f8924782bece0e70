package documents

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"storygen-backend/internal/shared/server/respond"
	"storygen-backend/internal/shared/util"
)

// Handler serves final documents.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches document routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/subjects/:id/document", h.get)
}

// get answers 404 until generation completes. The body is the JSON document, or the markdown
// body with ?format=markdown. Polling clients can send If-None-Match.
func (h *Handler) get(c *gin.Context) {
	doc, err := h.Svc.Get(c.Request.Context(), c.Param("id"))
	switch {
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, respond.CodeNotFound, "document not generated yet", nil)
		return
	case err != nil:
		respond.Internal(c, "failed to fetch document", err)
		return
	}

	markdown := c.Query("format") == "markdown"
	etag := util.ETag(doc.Body)
	if markdown {
		etag = `W/` + etag
	}
	c.Header("ETag", etag)
	c.Header("Cache-Control", "no-cache")
	if match := c.GetHeader("If-None-Match"); match != "" && strings.Contains(match, etag) {
		c.Status(http.StatusNotModified)
		return
	}

	if markdown {
		respond.Markdown(c, doc.Body)
		return
	}
	respond.OK(c, doc)
}
