package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/timetable-api/internal/service"
	"github.com/noah-isme/timetable-api/pkg/response"
)

// YearGroupHandler exposes year group endpoints.
type YearGroupHandler struct {
	service *service.YearGroupService
}

// NewYearGroupHandler constructs handler.
func NewYearGroupHandler(svc *service.YearGroupService) *YearGroupHandler {
	return &YearGroupHandler{service: svc}
}

// List godoc
// @Summary List year groups
// @Tags Year Groups
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /year-groups [get]
func (h *YearGroupHandler) List(c *gin.Context) {
	groups, err := h.service.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, groups, nil)
}

// Create godoc
// @Summary Create year group
// @Tags Year Groups
// @Accept json
// @Produce json
// @Param payload body service.YearGroupRequest true "Year group payload"
// @Success 201 {object} response.Envelope
// @Router /year-groups [post]
func (h *YearGroupHandler) Create(c *gin.Context) {
	var req service.YearGroupRequest
	if !bindJSON(c, &req, "invalid year group payload") {
		return
	}
	group, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, group)
}

// Delete godoc
// @Summary Delete year group; its entries become school-wide
// @Tags Year Groups
// @Param id path string true "Year group ID"
// @Success 204
// @Router /year-groups/{id} [delete]
func (h *YearGroupHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
