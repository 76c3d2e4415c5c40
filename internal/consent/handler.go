package consent

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/uwcirg/truenth-portal-sub002/internal/domain"
	"github.com/uwcirg/truenth-portal-sub002/internal/errors"
)

// Handler handles HTTP requests for consent events
type Handler struct {
	service Service
}

// NewHandler creates a new consent handler
func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

type recordEventRequest struct {
	StudyID            uint64     `json:"study_id"`
	Status             string     `json:"status" binding:"required,oneof=consented suspended withdrawn deleted"`
	AcceptanceDate     *time.Time `json:"acceptance_date"`
	ResearchProtocolID uint64     `json:"research_protocol_id"`
}

// Record appends a consent event for a subject
func (h *Handler) Record(c *gin.Context) {
	var form recordEventRequest
	if err := c.ShouldBindJSON(&form); err != nil {
		c.Error(errors.NewValidationError(err))
		return
	}

	event := &domain.ConsentEvent{
		SubjectID:          c.Param("id"),
		StudyID:            form.StudyID,
		Status:             form.Status,
		AcceptanceDate:     form.AcceptanceDate,
		ResearchProtocolID: form.ResearchProtocolID,
	}

	if err := h.service.RecordEvent(c.Request.Context(), event); err != nil {
		if errors.IsInputShape(err) {
			c.Error(errors.UnprocessableEntity(err.Error(), err))
			return
		}
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, event)
}

// ShowHistory lists a subject's consent events for a study
func (h *Handler) ShowHistory(c *gin.Context) {
	studyID, err := strconv.ParseUint(c.Param("study"), 10, 64)
	if err != nil {
		c.Error(errors.BadRequest("Invalid study id", err))
		return
	}

	events, err := h.service.History(c.Request.Context(), c.Param("id"), studyID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": events})
}
