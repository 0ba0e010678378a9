package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/soundprediction/kgroute"
	"github.com/soundprediction/kgroute/pkg/server/dto"
	"github.com/soundprediction/kgroute/pkg/types"
)

// AnswerHandler handles question answering requests
type AnswerHandler struct {
	answerer kgroute.Answerer
	logger   *slog.Logger
}

// NewAnswerHandler creates a new answer handler
func NewAnswerHandler(a kgroute.Answerer, logger *slog.Logger) *AnswerHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AnswerHandler{answerer: a, logger: logger}
}

func writeError(c *gin.Context, status int, code, message string) {
	c.JSON(status, dto.ErrorResponse{Error: code, Message: message, Code: status})
}

// Answer handles POST /api/v1/answer
func (h *AnswerHandler) Answer(c *gin.Context) {
	if h.answerer == nil {
		writeError(c, http.StatusServiceUnavailable, dto.CodeUnavailable, "kgroute client not initialized")
		return
	}

	var req dto.AnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, dto.CodeInvalidRequest, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		writeError(c, http.StatusBadRequest, dto.CodeInvalidRequest, err.Error())
		return
	}

	opts := &kgroute.AnswerOptions{MaxRoutes: req.Routes, Width: req.Width, Depth: req.Depth}
	if req.QueryTime != nil {
		opts.QueryTime = *req.QueryTime
	}

	res, err := h.answerer.Answer(c.Request.Context(), req.Question, opts)
	if err != nil {
		switch {
		case errors.Is(err, types.ErrEmptyQuestion):
			writeError(c, http.StatusBadRequest, dto.CodeInvalidRequest, err.Error())
		case errors.Is(err, context.DeadlineExceeded):
			writeError(c, http.StatusGatewayTimeout, dto.CodeTimeout, err.Error())
		default:
			h.logger.Error("failed to answer question", "question", req.Question, "error", err)
			writeError(c, http.StatusInternalServerError, dto.CodeInternal, err.Error())
		}
		return
	}

	c.JSON(http.StatusOK, dto.NewAnswerResponse(res, req.IncludeDetails))
}

// GraphHandler serves read-only graph information
type GraphHandler struct {
	graph kgroute.GraphInspector
}

// NewGraphHandler creates a new graph handler
func NewGraphHandler(g kgroute.GraphInspector) *GraphHandler {
	return &GraphHandler{graph: g}
}

// EntityTypes handles GET /api/v1/entity-types
func (h *GraphHandler) EntityTypes(c *gin.Context) {
	if h.graph == nil {
		writeError(c, http.StatusServiceUnavailable, dto.CodeUnavailable, "kgroute client not initialized")
		return
	}
	entityTypes, err := h.graph.EntityTypes(c.Request.Context())
	if err != nil {
		writeError(c, http.StatusInternalServerError, dto.CodeInternal, err.Error())
		return
	}
	if entityTypes == nil {
		entityTypes = []string{}
	}
	c.JSON(http.StatusOK, dto.EntityTypesResponse{EntityTypes: entityTypes})
}
