package consent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/uwcirg/truenth-portal-sub002/internal/domain"
	"github.com/uwcirg/truenth-portal-sub002/internal/middleware"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) History(ctx context.Context, subjectID string, studyID uint64) ([]domain.ConsentEvent, error) {
	args := m.Called(ctx, subjectID, studyID)
	events, _ := args.Get(0).([]domain.ConsentEvent)
	return events, args.Error(1)
}

func (m *MockService) RecordEvent(ctx context.Context, event *domain.ConsentEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func setupRouter(service Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(middleware.ErrorHandler())

	h := NewHandler(service)
	router.POST("/internal/subjects/:id/consents", h.Record)
	router.GET("/internal/subjects/:id/studies/:study/consents", h.ShowHistory)
	return router
}

func TestRecordConsent(t *testing.T) {
	service := new(MockService)
	service.On("RecordEvent", mock.Anything, mock.MatchedBy(func(e *domain.ConsentEvent) bool {
		return e.SubjectID == "S1" && e.StudyID == 1 && e.Status == domain.ConsentConsented
	})).Return(nil)

	body := `{"study_id":1,"status":"consented","acceptance_date":"2020-01-01T00:00:00Z"}`
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/internal/subjects/S1/consents", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	setupRouter(service).ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	service.AssertExpectations(t)
}

func TestRecordConsentRejectsUnknownStatus(t *testing.T) {
	service := new(MockService)

	body := `{"study_id":1,"status":"revoked"}`
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/internal/subjects/S1/consents", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	setupRouter(service).ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	service.AssertNotCalled(t, "RecordEvent")
}

func TestRecordConsentAllowsMissingAcceptanceDate(t *testing.T) {
	service := new(MockService)
	service.On("RecordEvent", mock.Anything, mock.MatchedBy(func(e *domain.ConsentEvent) bool {
		return e.AcceptanceDate == nil
	})).Return(nil)

	body := `{"study_id":1,"status":"consented"}`
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/internal/subjects/S1/consents", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	setupRouter(service).ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	service.AssertExpectations(t)
}

func TestShowHistory(t *testing.T) {
	accepted := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	service := new(MockService)
	service.On("History", mock.Anything, "S1", uint64(1)).Return([]domain.ConsentEvent{
		{ID: 1, SubjectID: "S1", StudyID: 1, Status: domain.ConsentConsented, AcceptanceDate: &accepted},
	}, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/internal/subjects/S1/studies/1/consents", nil)
	setupRouter(service).ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data []domain.ConsentEvent `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, domain.ConsentConsented, body.Data[0].Status)
}

func TestShowHistoryBadStudyID(t *testing.T) {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/internal/subjects/S1/studies/zero/consents", nil)
	setupRouter(new(MockService)).ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
