package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/timetable-api/internal/models"
	"github.com/noah-isme/timetable-api/internal/service"
	appErrors "github.com/noah-isme/timetable-api/pkg/errors"
)

type scheduleStub struct {
	filter    models.ScheduleFilter
	created   service.ScheduleRequest
	createErr error
	deleted   string
}

func (s *scheduleStub) List(ctx context.Context, filter models.ScheduleFilter) ([]models.ScheduleEntry, *models.Pagination, error) {
	s.filter = filter
	return []models.ScheduleEntry{{ID: "e1"}}, &models.Pagination{Page: 1, PageSize: 20, TotalCount: 1}, nil
}

func (s *scheduleStub) Get(ctx context.Context, id string) (*models.ScheduleEntry, error) {
	return nil, appErrors.Clone(appErrors.ErrNotFound, "schedule entry not found")
}

func (s *scheduleStub) Create(ctx context.Context, req service.ScheduleRequest) (*models.ScheduleEntry, error) {
	s.created = req
	if s.createErr != nil {
		return nil, s.createErr
	}
	return &models.ScheduleEntry{ID: "e2", TeacherID: req.TeacherID}, nil
}

func (s *scheduleStub) Update(ctx context.Context, id string, req service.ScheduleRequest) (*models.ScheduleEntry, error) {
	return &models.ScheduleEntry{ID: id}, nil
}

func (s *scheduleStub) Delete(ctx context.Context, id string) error {
	s.deleted = id
	return nil
}

func TestScheduleHandlerListFilters(t *testing.T) {
	stub := &scheduleStub{}
	h := NewScheduleHandler(stub)

	c, w := newGinContext(http.MethodGet, "/schedules?teacher_id=t1&day_of_week=3&page=2&limit=5", nil)
	h.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "t1", stub.filter.TeacherID)
	require.NotNil(t, stub.filter.DayOfWeek)
	assert.Equal(t, 3, *stub.filter.DayOfWeek)
	assert.Equal(t, 2, stub.filter.Page)
	assert.Equal(t, 5, stub.filter.PageSize)

	c, w = newGinContext(http.MethodGet, "/schedules?day_of_week=monday", nil)
	h.List(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestScheduleHandlerCreate(t *testing.T) {
	stub := &scheduleStub{}
	h := NewScheduleHandler(stub)
	body := mustJSON(t, service.ScheduleRequest{TeacherID: "t1", SubjectID: "s1", DayOfWeek: 1, StartTime: "08:00", EndTime: "09:00"})

	c, w := newGinContext(http.MethodPost, "/schedules", body)
	h.Create(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "08:00", stub.created.StartTime)

	stub.createErr = appErrors.ErrInvalidTime
	c, w = newGinContext(http.MethodPost, "/schedules", body)
	h.Create(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestScheduleHandlerGetAndDelete(t *testing.T) {
	stub := &scheduleStub{}
	h := NewScheduleHandler(stub)

	c, w := newGinContext(http.MethodGet, "/schedules/missing", nil)
	h.Get(c)
	assert.Equal(t, http.StatusNotFound, w.Code)

	c, w = newGinContext(http.MethodDelete, "/schedules/e1", nil)
	c.Params = gin.Params{{Key: "id", Value: "e1"}}
	h.Delete(c)
	assert.Equal(t, http.StatusNoContent, c.Writer.Status())
	assert.Equal(t, "e1", stub.deleted)
}
