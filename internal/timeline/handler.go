package timeline

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/uwcirg/truenth-portal-sub002/internal/errors"
	"github.com/uwcirg/truenth-portal-sub002/internal/utils"
	"github.com/uwcirg/truenth-portal-sub002/internal/worker"
)

// Admin is the coordinator surface exposed to administrative routes
type Admin interface {
	Invalidate(ctx context.Context, subjectID string, studyID uint64) error
	InvalidateStudy(ctx context.Context, studyID uint64) (int, error)
	Warmup(ctx context.Context, studyID uint64) error
}

// TaskSubmitter queues background work
type TaskSubmitter interface {
	Submit(t worker.Task)
}

// Handler handles HTTP requests for the timeline query and
// invalidation surface
type Handler struct {
	service Service
	admin   Admin
	pool    TaskSubmitter
}

// NewHandler creates a new timeline handler
func NewHandler(service Service, admin Admin, pool TaskSubmitter) *Handler {
	return &Handler{service: service, admin: admin, pool: pool}
}

func studyParam(c *gin.Context) (uint64, bool) {
	studyID, err := strconv.ParseUint(c.Param("study"), 10, 64)
	if err != nil {
		c.Error(errors.BadRequest("Invalid study id", err))
		return 0, false
	}
	return studyID, true
}

// ShowTimeline returns the subject's ordered timeline rows, optionally
// filtered by a comma-separated status set, paginated
func (h *Handler) ShowTimeline(c *gin.Context) {
	studyID, ok := studyParam(c)
	if !ok {
		return
	}

	var statuses []string
	if raw := c.Query("status"); raw != "" {
		statuses = strings.Split(raw, ",")
	}

	rows, generation, err := h.service.HistoryRows(c.Request.Context(), c.Param("id"), studyID, statuses)
	if err != nil {
		h.renderCoreError(c, err)
		return
	}

	page, pageSize := utils.GetPaginationParams(c)
	start := (page - 1) * pageSize
	if start > len(rows) {
		start = len(rows)
	}
	end := start + pageSize
	if end > len(rows) {
		end = len(rows)
	}

	c.JSON(http.StatusOK, gin.H{
		"data":       rows[start:end],
		"generation": generation,
		"meta": gin.H{
			"total":        len(rows),
			"current_page": page,
			"per_page":     pageSize,
		},
	})
}

// NextDue returns the earliest due row for the subject, or 204
func (h *Handler) NextDue(c *gin.Context) {
	studyID, ok := studyParam(c)
	if !ok {
		return
	}

	row, err := h.service.NextDue(c.Request.Context(), c.Param("id"), studyID)
	if err != nil {
		h.renderCoreError(c, err)
		return
	}
	if row == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, row)
}

// StatusAt reports an instrument's status at a point in time
func (h *Handler) StatusAt(c *gin.Context) {
	studyID, ok := studyParam(c)
	if !ok {
		return
	}

	instrument := c.Query("instrument")
	if instrument == "" {
		c.Error(errors.BadRequest("instrument is required", nil))
		return
	}

	when := time.Now().UTC()
	if raw := c.Query("at"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.Error(errors.BadRequest("at must be RFC3339", err))
			return
		}
		when = parsed
	}

	status, err := h.service.StatusAt(c.Request.Context(), c.Param("id"), studyID, instrument, when)
	if err != nil {
		h.renderCoreError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"instrument": instrument, "status": status, "at": when})
}

// Invalidate marks one subject's timeline stale
func (h *Handler) Invalidate(c *gin.Context) {
	studyID, ok := studyParam(c)
	if !ok {
		return
	}

	if err := h.admin.Invalidate(c.Request.Context(), c.Param("id"), studyID); err != nil {
		c.Error(err)
		return
	}
	c.Status(http.StatusAccepted)
}

// InvalidateStudy coarsely marks every subject of a study stale
func (h *Handler) InvalidateStudy(c *gin.Context) {
	studyID, ok := studyParam(c)
	if !ok {
		return
	}

	count, err := h.admin.InvalidateStudy(c.Request.Context(), studyID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"subjects_invalidated": count})
}

// Warmup queues an eager rebuild of every stale entry for a study
func (h *Handler) Warmup(c *gin.Context) {
	studyID, ok := studyParam(c)
	if !ok {
		return
	}

	h.pool.Submit(func(ctx context.Context) error {
		return h.admin.Warmup(ctx, studyID)
	})
	c.Status(http.StatusAccepted)
}

// renderCoreError maps the core error taxonomy onto API errors
func (h *Handler) renderCoreError(c *gin.Context, err error) {
	switch {
	case errors.IsInputShape(err):
		c.Error(errors.UnprocessableEntity(err.Error(), err))
	case errors.IsInvariant(err):
		c.Error(errors.Internal(err))
	case errors.IsTransient(err):
		c.Error(errors.New(http.StatusServiceUnavailable, "Timeline temporarily unavailable", err))
	default:
		c.Error(err)
	}
}
