package subjects

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"storygen-backend/internal/pipeline"
	"storygen-backend/internal/shared/server/respond"
)

// Handler wires HTTP handlers to the service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches subject routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.PUT("/subjects/:id", h.put)
	rg.GET("/subjects/:id", h.get)
}

type putRequest struct {
	RawInput pipeline.RawInput `json:"rawInput"`
	Targets  []string          `json:"targets"`
	// TargetList accepts the free-text form, split on commas and newlines.
	TargetList string `json:"targetList"`
}

// SubjectResponse is the outward-facing representation of a subject.
type SubjectResponse struct {
	SubjectID string            `json:"subjectId"`
	RawInput  pipeline.RawInput `json:"rawInput"`
	Targets   []string          `json:"targets"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

func toResponse(s Subject) SubjectResponse {
	targets := s.Targets
	if targets == nil {
		targets = []string{}
	}
	return SubjectResponse{
		SubjectID: s.ID,
		RawInput:  s.RawInput,
		Targets:   targets,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

func (h *Handler) put(c *gin.Context) {
	var req putRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, respond.CodeValidation, "invalid request body", nil)
		return
	}
	targets := req.Targets
	if req.TargetList != "" {
		targets = append(targets, req.TargetList)
	}

	subject, err := h.Svc.Save(c.Request.Context(), c.Param("id"), Input{RawInput: req.RawInput, Targets: targets})
	if err != nil {
		writeError(c, err, "failed to save subject")
		return
	}
	respond.OK(c, toResponse(subject))
}

func (h *Handler) get(c *gin.Context) {
	subject, err := h.Svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err, "failed to fetch subject")
		return
	}
	respond.OK(c, toResponse(subject))
}

func writeError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		respond.Error(c, http.StatusBadRequest, respond.CodeValidation, err.Error(), nil)
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, respond.CodeNotFound, "subject not found", nil)
	case errors.Is(err, ErrLocked):
		respond.Error(c, http.StatusConflict, respond.CodeGenerationStarted, "reset generation before changing the subject input", nil)
	default:
		respond.Internal(c, fallback, err)
	}
}
