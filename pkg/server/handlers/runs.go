package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/soundprediction/kgroute"
	"github.com/soundprediction/kgroute/pkg/archive"
	"github.com/soundprediction/kgroute/pkg/server/dto"
)

// RunHandler serves archived runs
type RunHandler struct {
	runs kgroute.RunLookup
}

// NewRunHandler creates a new run handler
func NewRunHandler(r kgroute.RunLookup) *RunHandler {
	return &RunHandler{runs: r}
}

func (h *RunHandler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, archive.ErrNotFound):
		writeError(c, http.StatusNotFound, dto.CodeNotFound, err.Error())
	case errors.Is(err, kgroute.ErrNoArchive):
		writeError(c, http.StatusServiceUnavailable, dto.CodeUnavailable, err.Error())
	default:
		writeError(c, http.StatusInternalServerError, dto.CodeInternal, err.Error())
	}
}

// Run handles GET /api/v1/runs/:id
func (h *RunHandler) Run(c *gin.Context) {
	if h.runs == nil {
		h.fail(c, kgroute.ErrNoArchive)
		return
	}
	run, err := h.runs.Run(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

// List handles GET /api/v1/runs
func (h *RunHandler) List(c *gin.Context) {
	if h.runs == nil {
		h.fail(c, kgroute.ErrNoArchive)
		return
	}
	var q dto.RunsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		writeError(c, http.StatusBadRequest, dto.CodeInvalidRequest, err.Error())
		return
	}
	runs, err := h.runs.Runs(c.Request.Context(), q.Limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	if runs == nil {
		runs = []*archive.Run{}
	}
	c.JSON(http.StatusOK, dto.RunsResponse{Runs: runs})
}
