package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/timetable-api/internal/service"
	"github.com/noah-isme/timetable-api/internal/timetable"
	"github.com/noah-isme/timetable-api/pkg/response"
)

type editSessionService interface {
	State(ctx context.Context, userID string) (timetable.SessionState, error)
	Enter(ctx context.Context, userID string) (timetable.SessionState, error)
	Cancel(userID string) (timetable.SessionState, error)
	Stage(userID string, m timetable.Mutation) (timetable.Entry, error)
	Pending(userID string) ([]timetable.Mutation, error)
	Commit(ctx context.Context, userID string) (timetable.CommitResult, error)
}

// SessionHandler exposes the caller's edit session.
type SessionHandler struct {
	sessions editSessionService
}

// NewSessionHandler constructs handler.
func NewSessionHandler(sessions editSessionService) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// State godoc
// @Summary Current mode and working list
// @Tags Edit Session
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /timetable/session [get]
func (h *SessionHandler) State(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	state, err := h.sessions.State(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, state, nil)
}

// Enter godoc
// @Summary Enter batch mode
// @Tags Edit Session
// @Produce json
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /timetable/session [post]
func (h *SessionHandler) Enter(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	state, err := h.sessions.Enter(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, state)
}

// Cancel godoc
// @Summary Discard staged changes and leave batch mode
// @Tags Edit Session
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /timetable/session [delete]
func (h *SessionHandler) Cancel(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	state, err := h.sessions.Cancel(claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, state, nil)
}

// Stage godoc
// @Summary Stage a create, update or delete
// @Tags Edit Session
// @Accept json
// @Produce json
// @Param payload body service.StageRequest true "Mutation"
// @Success 201 {object} response.Envelope
// @Router /timetable/session/mutations [post]
func (h *SessionHandler) Stage(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	var req service.StageRequest
	if !bindJSON(c, &req, "invalid mutation payload") {
		return
	}
	m, err := req.Mutation()
	if err != nil {
		response.Error(c, err)
		return
	}
	entry, err := h.sessions.Stage(claims.UserID, m)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, entry)
}

// Pending godoc
// @Summary Operations a commit would send
// @Tags Edit Session
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /timetable/session/mutations [get]
func (h *SessionHandler) Pending(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	ops, err := h.sessions.Pending(claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, ops, nil)
}

// Commit godoc
// @Summary Commit staged changes
// @Description Responds 207 when some operations failed; the body lists them.
// @Tags Edit Session
// @Produce json
// @Success 200 {object} response.Envelope
// @Success 207 {object} response.Envelope
// @Router /timetable/session/commit [post]
func (h *SessionHandler) Commit(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	result, err := h.sessions.Commit(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	status := http.StatusOK
	if len(result.Failed) > 0 {
		status = http.StatusMultiStatus
	}
	response.JSON(c, status, result, nil)
}
