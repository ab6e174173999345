package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/timetable-api/internal/middleware"
	"github.com/noah-isme/timetable-api/internal/service"
	"github.com/noah-isme/timetable-api/internal/timetable"
	"github.com/noah-isme/timetable-api/pkg/response"
)

type timetableService interface {
	Periods() []timetable.Period
	LoadBoard(ctx context.Context) (*service.Board, bool, error)
	Grid(ctx context.Context, query service.GridQuery) ([]timetable.GridDay, error)
	ResolveDrop(ctx context.Context, userID string, req service.DropRequest) (timetable.MutationPlan, error)
	Drop(ctx context.Context, userID string, req service.DropRequest) (*service.DropResult, error)
}

// TimetableHandler serves the board and drag-and-drop gestures.
type TimetableHandler struct {
	service timetableService
}

// NewTimetableHandler constructs handler.
func NewTimetableHandler(svc timetableService) *TimetableHandler {
	return &TimetableHandler{service: svc}
}

// Periods godoc
// @Summary Fixed period table
// @Tags Timetable
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /timetable/periods [get]
func (h *TimetableHandler) Periods(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.service.Periods(), nil)
}

// Board godoc
// @Summary Reference data and schedule for the board
// @Tags Timetable
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /timetable/board [get]
func (h *TimetableHandler) Board(c *gin.Context) {
	board, hit, err := h.service.LoadBoard(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, board, nil, middleware.ExtractMeta(c))
}

// Grid godoc
// @Summary Schedule laid out by day, teacher and period
// @Tags Timetable
// @Produce json
// @Param teacher_ids query string false "Comma separated teacher ids"
// @Param subject_ids query string false "Comma separated subject ids"
// @Param year_group_id query string false "Year group"
// @Success 200 {object} response.Envelope
// @Router /timetable/grid [get]
func (h *TimetableHandler) Grid(c *gin.Context) {
	days, err := h.service.Grid(c.Request.Context(), service.GridQuery{
		TeacherIDs:  queryList(c, "teacher_ids"),
		SubjectIDs:  queryList(c, "subject_ids"),
		YearGroupID: c.Query("year_group_id"),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, days, nil)
}

// ResolveDrop godoc
// @Summary Plan a drop without applying it
// @Tags Timetable
// @Accept json
// @Produce json
// @Param payload body service.DropRequest true "Drop"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /timetable/drops/resolve [post]
func (h *TimetableHandler) ResolveDrop(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	var req service.DropRequest
	if !bindJSON(c, &req, "invalid drop payload") {
		return
	}
	plan, err := h.service.ResolveDrop(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, plan, nil)
}

// Drop godoc
// @Summary Apply a drop: written through live, or staged in batch mode
// @Tags Timetable
// @Accept json
// @Produce json
// @Param payload body service.DropRequest true "Drop"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /timetable/drops [post]
func (h *TimetableHandler) Drop(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	var req service.DropRequest
	if !bindJSON(c, &req, "invalid drop payload") {
		return
	}
	result, err := h.service.Drop(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
