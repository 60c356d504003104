package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cdil-edu/lms-api/internal/service"
	appErrors "github.com/cdil-edu/lms-api/pkg/errors"
	"github.com/cdil-edu/lms-api/pkg/response"
)

// AttendanceHandler exposes attendance listing, stats, and marking endpoints.
type AttendanceHandler struct {
	attendance *service.AttendanceService
}

// NewAttendanceHandler constructs AttendanceHandler.
func NewAttendanceHandler(attendance *service.AttendanceService) *AttendanceHandler {
	return &AttendanceHandler{attendance: attendance}
}

// List godoc
// @Summary List the current student's attendance in a course
// @Tags Attendance
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/attendance [get]
func (h *AttendanceHandler) List(c *gin.Context) {
	records, err := h.attendance.MyAttendance(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}

// Stats godoc
// @Summary Attendance summary for the current student in a course
// @Tags Attendance
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/attendance/stats [get]
func (h *AttendanceHandler) Stats(c *gin.Context) {
	stats, err := h.attendance.MyStats(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}

// Mark godoc
// @Summary Mark a student's attendance on a lesson
// @Tags Attendance
// @Accept json
// @Produce json
// @Param id path string true "Lesson ID"
// @Param payload body service.MarkAttendanceInput true "Attendance payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /lessons/{id}/attendance [post]
func (h *AttendanceHandler) Mark(c *gin.Context) {
	var input service.MarkAttendanceInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid attendance payload"))
		return
	}
	record, err := h.attendance.Mark(c.Request.Context(), claimsFromContext(c), c.Param("id"), input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}
