package response

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/uwcirg/truenth-portal-sub002/internal/domain"
	"github.com/uwcirg/truenth-portal-sub002/internal/errors"
)

// Handler handles HTTP requests for questionnaire responses
type Handler struct {
	service Service
}

// NewHandler creates a new response handler
func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

type recordResponseRequest struct {
	StudyID    uint64    `json:"study_id"`
	Instrument string    `json:"instrument" binding:"required"`
	AuthoredAt time.Time `json:"authored_at" binding:"required"`
}

// Record persists a submitted instrument response
func (h *Handler) Record(c *gin.Context) {
	var form recordResponseRequest
	if err := c.ShouldBindJSON(&form); err != nil {
		c.Error(errors.NewValidationError(err))
		return
	}

	response := &domain.QuestionnaireResponse{
		SubjectID:  c.Param("id"),
		StudyID:    form.StudyID,
		Instrument: form.Instrument,
		AuthoredAt: form.AuthoredAt,
	}

	if err := h.service.Record(c.Request.Context(), response); err != nil {
		if errors.IsInputShape(err) {
			c.Error(errors.UnprocessableEntity(err.Error(), err))
			return
		}
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, response)
}

// Remove soft-deletes a response
func (h *Handler) Remove(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("responseId"), 10, 64)
	if err != nil {
		c.Error(errors.BadRequest("Invalid response id", err))
		return
	}

	if err := h.service.Remove(c.Request.Context(), id); err != nil {
		c.Error(err)
		return
	}

	c.Status(http.StatusNoContent)
}
