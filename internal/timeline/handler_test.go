package timeline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/uwcirg/truenth-portal-sub002/internal/domain"
	"github.com/uwcirg/truenth-portal-sub002/internal/errors"
	"github.com/uwcirg/truenth-portal-sub002/internal/middleware"
	"github.com/uwcirg/truenth-portal-sub002/internal/worker"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) HistoryRows(ctx context.Context, subjectID string, studyID uint64, statuses []string) ([]domain.TimelineRow, uint64, error) {
	args := m.Called(ctx, subjectID, studyID, statuses)
	rows, _ := args.Get(0).([]domain.TimelineRow)
	return rows, args.Get(1).(uint64), args.Error(2)
}

func (m *MockService) NextDue(ctx context.Context, subjectID string, studyID uint64) (*domain.TimelineRow, error) {
	args := m.Called(ctx, subjectID, studyID)
	row, _ := args.Get(0).(*domain.TimelineRow)
	return row, args.Error(1)
}

func (m *MockService) StatusAt(ctx context.Context, subjectID string, studyID uint64, instrument string, when time.Time) (string, error) {
	args := m.Called(ctx, subjectID, studyID, instrument, when)
	return args.String(0), args.Error(1)
}

type MockAdmin struct {
	mock.Mock
}

func (m *MockAdmin) Invalidate(ctx context.Context, subjectID string, studyID uint64) error {
	args := m.Called(ctx, subjectID, studyID)
	return args.Error(0)
}

func (m *MockAdmin) InvalidateStudy(ctx context.Context, studyID uint64) (int, error) {
	args := m.Called(ctx, studyID)
	return args.Int(0), args.Error(1)
}

func (m *MockAdmin) Warmup(ctx context.Context, studyID uint64) error {
	args := m.Called(ctx, studyID)
	return args.Error(0)
}

// inlinePool runs submitted tasks synchronously so tests can assert on
// their effects
type inlinePool struct{}

func (inlinePool) Submit(t worker.Task) { _ = t(context.Background()) }

func setupRouter(service Service, admin Admin) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(middleware.ErrorHandler())

	h := NewHandler(service, admin, inlinePool{})
	router.GET("/internal/subjects/:id/studies/:study/timeline", h.ShowTimeline)
	router.GET("/internal/subjects/:id/studies/:study/timeline/next-due", h.NextDue)
	router.GET("/internal/subjects/:id/studies/:study/timeline/status", h.StatusAt)
	router.POST("/internal/subjects/:id/studies/:study/timeline/invalidate", h.Invalidate)
	router.POST("/internal/studies/:study/timeline/invalidate", h.InvalidateStudy)
	router.POST("/internal/studies/:study/timeline/warmup", h.Warmup)
	return router
}

func doRequest(router *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(method, path, nil)
	router.ServeHTTP(w, req)
	return w
}

func TestShowTimeline(t *testing.T) {
	service := new(MockService)
	service.On("HistoryRows", mock.Anything, "S1", uint64(1), []string(nil)).
		Return(sampleRows(), uint64(2), nil)

	w := doRequest(setupRouter(service, new(MockAdmin)),
		"GET", "/internal/subjects/S1/studies/1/timeline")

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data       []domain.TimelineRow `json:"data"`
		Generation uint64               `json:"generation"`
		Meta       struct {
			Total int `json:"total"`
		} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body.Data, 3)
	assert.Equal(t, uint64(2), body.Generation)
	assert.Equal(t, 3, body.Meta.Total)
	service.AssertExpectations(t)
}

func TestShowTimelineStatusFilterAndPagination(t *testing.T) {
	service := new(MockService)
	service.On("HistoryRows", mock.Anything, "S1", uint64(1), []string{"due", "overdue"}).
		Return(sampleRows(), uint64(2), nil)

	w := doRequest(setupRouter(service, new(MockAdmin)),
		"GET", "/internal/subjects/S1/studies/1/timeline?status=due,overdue&page=2&per_page=2")

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data []domain.TimelineRow `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body.Data, 1)
	service.AssertExpectations(t)
}

func TestShowTimelineBadStudyID(t *testing.T) {
	w := doRequest(setupRouter(new(MockService), new(MockAdmin)),
		"GET", "/internal/subjects/S1/studies/notanumber/timeline")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestShowTimelineInputShapeMapsTo422(t *testing.T) {
	service := new(MockService)
	service.On("HistoryRows", mock.Anything, "S1", uint64(1), []string(nil)).
		Return(nil, uint64(0), errors.InputShape("recurrence for bank 7 has non-positive cycle -1"))

	w := doRequest(setupRouter(service, new(MockAdmin)),
		"GET", "/internal/subjects/S1/studies/1/timeline")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestShowTimelineTransientMapsTo503(t *testing.T) {
	service := new(MockService)
	service.On("HistoryRows", mock.Anything, "S1", uint64(1), []string(nil)).
		Return(nil, uint64(0), errors.Transient(errors.ErrBuildSuperseded))

	w := doRequest(setupRouter(service, new(MockAdmin)),
		"GET", "/internal/subjects/S1/studies/1/timeline")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestNextDueHandler(t *testing.T) {
	row := sampleRows()[1]
	service := new(MockService)
	service.On("NextDue", mock.Anything, "S1", uint64(1)).Return(&row, nil)

	w := doRequest(setupRouter(service, new(MockAdmin)),
		"GET", "/internal/subjects/S1/studies/1/timeline/next-due")

	require.Equal(t, http.StatusOK, w.Code)
	var got domain.TimelineRow
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, domain.StatusDue, got.Status)
}

func TestNextDueHandlerNothingPending(t *testing.T) {
	service := new(MockService)
	service.On("NextDue", mock.Anything, "S1", uint64(1)).Return(nil, nil)

	w := doRequest(setupRouter(service, new(MockAdmin)),
		"GET", "/internal/subjects/S1/studies/1/timeline/next-due")
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestStatusAtHandler(t *testing.T) {
	when := time.Date(2020, 2, 1, 0, 0, 0, 0, time.UTC)
	service := new(MockService)
	service.On("StatusAt", mock.Anything, "S1", uint64(1), "epic26", when).
		Return(domain.StatusOverdue, nil)

	w := doRequest(setupRouter(service, new(MockAdmin)),
		"GET", "/internal/subjects/S1/studies/1/timeline/status?instrument=epic26&at=2020-02-01T00:00:00Z")

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, domain.StatusOverdue, body["status"])
}

func TestStatusAtHandlerRequiresInstrument(t *testing.T) {
	w := doRequest(setupRouter(new(MockService), new(MockAdmin)),
		"GET", "/internal/subjects/S1/studies/1/timeline/status")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStatusAtHandlerRejectsBadTimestamp(t *testing.T) {
	w := doRequest(setupRouter(new(MockService), new(MockAdmin)),
		"GET", "/internal/subjects/S1/studies/1/timeline/status?instrument=epic26&at=yesterday")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestInvalidateHandler(t *testing.T) {
	admin := new(MockAdmin)
	admin.On("Invalidate", mock.Anything, "S1", uint64(1)).Return(nil)

	w := doRequest(setupRouter(new(MockService), admin),
		"POST", "/internal/subjects/S1/studies/1/timeline/invalidate")

	assert.Equal(t, http.StatusAccepted, w.Code)
	admin.AssertExpectations(t)
}

func TestInvalidateStudyHandler(t *testing.T) {
	admin := new(MockAdmin)
	admin.On("InvalidateStudy", mock.Anything, uint64(1)).Return(42, nil)

	w := doRequest(setupRouter(new(MockService), admin),
		"POST", "/internal/studies/1/timeline/invalidate")

	require.Equal(t, http.StatusAccepted, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, float64(42), body["subjects_invalidated"])
}

func TestWarmupHandlerQueuesRebuild(t *testing.T) {
	admin := new(MockAdmin)
	admin.On("Warmup", mock.Anything, uint64(1)).Return(nil)

	w := doRequest(setupRouter(new(MockService), admin),
		"POST", "/internal/studies/1/timeline/warmup")

	assert.Equal(t, http.StatusAccepted, w.Code)
	admin.AssertExpectations(t)
}
