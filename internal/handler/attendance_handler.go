package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dualsign/attendance-api/internal/service"
	appErrors "github.com/dualsign/attendance-api/pkg/errors"
	"github.com/dualsign/attendance-api/pkg/response"
)

// AttendanceHandler handles sign-in, record listing, statistics and
// signature retrieval.
type AttendanceHandler struct {
	signIn  *service.SignInService
	stats   *service.StatsService
	metrics *service.MetricsService
}

// NewAttendanceHandler creates a new attendance handler.
func NewAttendanceHandler(signIn *service.SignInService, stats *service.StatsService, metrics *service.MetricsService) *AttendanceHandler {
	return &AttendanceHandler{signIn: signIn, stats: stats, metrics: metrics}
}

// SignIn godoc
// @Summary Sign in to a session
// @Description Records attendance for a student against an open session after password and signature verification
// @Tags Attendance
// @Accept json
// @Produce json
// @Param sessionID path string true "Session ID"
// @Param payload body service.SignInRequest true "Sign-in payload"
// @Success 201 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /attendance/signin/{sessionID} [post]
func (h *AttendanceHandler) SignIn(c *gin.Context) {
	var req service.SignInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	record, err := h.signIn.SignIn(c.Request.Context(), c.Param("sessionID"), req)
	if err != nil {
		h.observeSignIn(err)
		response.Error(c, err)
		return
	}

	h.observeSignIn(nil)
	response.Created(c, record)
}

// SignInForCourse godoc
// @Summary Sign in to a course's session for today
// @Description Resolves today's session for the course, creating one when missing, then records attendance
// @Tags Attendance
// @Accept json
// @Produce json
// @Param courseID path string true "Course ID"
// @Param payload body service.SignInRequest true "Sign-in payload"
// @Success 201 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /attendance/courses/{courseID}/signin [post]
func (h *AttendanceHandler) SignInForCourse(c *gin.Context) {
	var req service.SignInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	record, err := h.signIn.SignInForCourse(c.Request.Context(), c.Param("courseID"), req, claimsFromContext(c))
	if err != nil {
		h.observeSignIn(err)
		response.Error(c, err)
		return
	}

	h.observeSignIn(nil)
	response.Created(c, record)
}

// Records godoc
// @Summary List a session's attendance records
// @Tags Attendance
// @Produce json
// @Param sessionID path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /attendance/records/{sessionID} [get]
func (h *AttendanceHandler) Records(c *gin.Context) {
	records, err := h.stats.ListRecords(c.Request.Context(), c.Param("sessionID"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, records, nil)
}

// Stats godoc
// @Summary Attendance statistics for a session
// @Tags Attendance
// @Produce json
// @Param sessionID path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /attendance/stats/{sessionID} [get]
func (h *AttendanceHandler) Stats(c *gin.Context) {
	stats, err := h.stats.Compute(c.Request.Context(), c.Param("sessionID"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, stats, nil)
}

// Signature godoc
// @Summary Retrieve a stored signature
// @Tags Attendance
// @Produce json
// @Param id path string true "Signature ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /attendance/signatures/{id} [get]
func (h *AttendanceHandler) Signature(c *gin.Context) {
	signature, err := h.stats.GetSignature(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, signature, nil)
}

func (h *AttendanceHandler) observeSignIn(err error) {
	if h.metrics == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = appErrors.FromError(err).Code
	}
	h.metrics.ObserveSignIn(outcome)
}
