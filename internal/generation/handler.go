package generation

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"storygen-backend/internal/pipeline"
	"storygen-backend/internal/shared/server/respond"
	"storygen-backend/internal/subjects"
)

// Handler exposes the control surface of the machine.
type Handler struct {
	Machine *Machine
}

// NewHandler constructs a Handler.
func NewHandler(m *Machine) *Handler {
	return &Handler{Machine: m}
}

// RegisterRoutes attaches generation routes.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/subjects/:id/generate", h.generate)
	rg.POST("/subjects/:id/regenerate", h.regenerate)
	rg.DELETE("/subjects/:id/generation", h.reset)
	rg.GET("/subjects/:id/status", h.status)
}

// OutcomeResponse is the JSON form of an Outcome.
type OutcomeResponse struct {
	SubjectID   string  `json:"subjectId"`
	Status      string  `json:"status"`
	Stage       string  `json:"stage,omitempty"`
	WaitSeconds float64 `json:"waitSeconds,omitempty"`
	Code        string  `json:"code,omitempty"`
	Message     string  `json:"message,omitempty"`
}

func toOutcomeResponse(subjectID string, out Outcome) OutcomeResponse {
	resp := OutcomeResponse{
		SubjectID: subjectID,
		Status:    string(out.Status),
		Stage:     string(out.Stage),
		Message:   out.Message,
	}
	if out.Status == StatusScheduled {
		resp.WaitSeconds = out.Wait.Seconds()
	}
	if out.Status == StatusError {
		resp.Code = string(out.Code)
	}
	return resp
}

func outcomeStatus(out Outcome) int {
	switch out.Status {
	case StatusReady:
		return http.StatusOK
	case StatusInProgress, StatusScheduled:
		return http.StatusAccepted
	}
	switch out.Code {
	case pipeline.CodeMissingInput:
		return http.StatusUnprocessableEntity
	case pipeline.CodeMissingCredential, pipeline.CodeInternalError, pipeline.CodeStorageError:
		return http.StatusInternalServerError
	default:
		return http.StatusBadGateway
	}
}

func (h *Handler) generate(c *gin.Context) {
	id := c.Param("id")
	force, _ := strconv.ParseBool(c.Query("force"))
	async, _ := strconv.ParseBool(c.Query("async"))

	ctx := c.Request.Context()
	if force {
		if err := h.Machine.Reset(ctx, id); err != nil {
			writeError(c, err, "failed to reset generation")
			return
		}
	}

	var (
		out Outcome
		err error
	)
	if async {
		out, err = h.Machine.Enqueue(ctx, id)
	} else {
		out, err = h.Machine.Advance(ctx, id)
	}
	if err != nil {
		writeError(c, err, "failed to advance generation")
		return
	}
	c.Set("outcome", string(out.Status))
	respond.JSON(c, outcomeStatus(out), toOutcomeResponse(id, out))
}

func (h *Handler) regenerate(c *gin.Context) {
	id := c.Param("id")
	out, err := h.Machine.Regenerate(c.Request.Context(), id)
	if err != nil {
		writeError(c, err, "failed to regenerate")
		return
	}
	c.Set("outcome", string(out.Status))
	respond.JSON(c, outcomeStatus(out), toOutcomeResponse(id, out))
}

func (h *Handler) reset(c *gin.Context) {
	id := c.Param("id")
	if err := h.Machine.Reset(c.Request.Context(), id); err != nil {
		writeError(c, err, "failed to reset generation")
		return
	}
	respond.NoContent(c)
}

func (h *Handler) status(c *gin.Context) {
	snap, err := h.Machine.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err, "failed to read generation status")
		return
	}
	respond.OK(c, snap)
}

func writeError(c *gin.Context, err error, fallback string) {
	if errors.Is(err, subjects.ErrInvalidInput) {
		respond.Error(c, http.StatusBadRequest, respond.CodeValidation, err.Error(), nil)
		return
	}
	respond.Internal(c, fallback, err)
}
