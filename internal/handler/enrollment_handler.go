package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/zjgsu-ms/campus-course-api/internal/models"
	"github.com/zjgsu-ms/campus-course-api/internal/service"
	appErrors "github.com/zjgsu-ms/campus-course-api/pkg/errors"
	"github.com/zjgsu-ms/campus-course-api/pkg/response"
)

// EnrollmentHandler exposes enrollment endpoints.
type EnrollmentHandler struct {
	enrollments *service.EnrollmentService
	audit       *service.AuditService
}

// NewEnrollmentHandler constructs EnrollmentHandler.
func NewEnrollmentHandler(enrollments *service.EnrollmentService, audit *service.AuditService) *EnrollmentHandler {
	return &EnrollmentHandler{enrollments: enrollments, audit: audit}
}

// List godoc
// @Summary List enrollments
// @Tags Enrollments
// @Produce json
// @Param course_id query string false "Filter by course"
// @Param student_id query string false "Filter by student"
// @Param status query string false "Filter by status"
// @Param active query bool false "Only records holding a seat"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /enrollments [get]
func (h *EnrollmentHandler) List(c *gin.Context) {
	var filter models.EnrollmentFilter
	filter.CourseID = c.Query("course_id")
	filter.StudentID = c.Query("student_id")
	filter.Status = models.EnrollmentStatus(c.Query("status"))
	filter.ActiveOnly = c.Query("active") == "true"
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortOrder = c.Query("order")

	enrollments, pagination, err := h.enrollments.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollments, pagination)
}

// Get godoc
// @Summary Get enrollment detail
// @Tags Enrollments
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id} [get]
func (h *EnrollmentHandler) Get(c *gin.Context) {
	enrollment, err := h.enrollments.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}

// Enroll godoc
// @Summary Enroll a student into a course
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param payload body service.EnrollRequest true "Enrollment payload"
// @Success 201 {object} response.Envelope
// @Router /enrollments [post]
func (h *EnrollmentHandler) Enroll(c *gin.Context) {
	var req service.EnrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	enrollment, err := h.enrollments.Enroll(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, enrollment)
}

// Withdraw godoc
// @Summary Withdraw a student from a course
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param payload body service.WithdrawRequest true "Withdrawal payload"
// @Success 200 {object} response.Envelope
// @Router /enrollments/withdraw [post]
func (h *EnrollmentHandler) Withdraw(c *gin.Context) {
	var req service.WithdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	withdrawn, err := h.enrollments.Withdraw(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"withdrawn": withdrawn}, nil)
}

// UpdateGrade godoc
// @Summary Assign a grade to an enrollment
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param payload body service.GradeRequest true "Grade payload"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/grade [put]
func (h *EnrollmentHandler) UpdateGrade(c *gin.Context) {
	var req service.GradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	enrollment, err := h.enrollments.UpdateGrade(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}

// Check godoc
// @Summary Check whether a student holds an active enrollment
// @Tags Enrollments
// @Produce json
// @Param course_id query string true "Course ID"
// @Param student_id query string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments/check [get]
func (h *EnrollmentHandler) Check(c *gin.Context) {
	enrolled, err := h.enrollments.IsEnrolled(c.Request.Context(), c.Query("course_id"), c.Query("student_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"enrolled": enrolled}, nil)
}

// Events godoc
// @Summary Audit trail of an enrollment
// @Tags Enrollments
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/events [get]
func (h *EnrollmentHandler) Events(c *gin.Context) {
	events, err := h.audit.Trail(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if events == nil {
		events = []models.EnrollmentEvent{}
	}
	response.JSON(c, http.StatusOK, events, nil)
}

// CountByCourse godoc
// @Summary Count seats held in a course
// @Tags Enrollments
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/enrollments/count [get]
func (h *EnrollmentHandler) CountByCourse(c *gin.Context) {
	count, err := h.enrollments.CountByCourse(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"count": count}, nil)
}

// CountByStudent godoc
// @Summary Count a student's non-withdrawn enrollments
// @Tags Enrollments
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/enrollments/count [get]
func (h *EnrollmentHandler) CountByStudent(c *gin.Context) {
	count, err := h.enrollments.CountByStudent(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"count": count}, nil)
}

// StudentGrade godoc
// @Summary Grade of a student's most recent enrollment in a course
// @Tags Enrollments
// @Produce json
// @Param id path string true "Student ID"
// @Param courseId path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/courses/{courseId}/grade [get]
func (h *EnrollmentHandler) StudentGrade(c *gin.Context) {
	enrollment, err := h.enrollments.StudentGrade(c.Request.Context(), c.Param("id"), c.Param("courseId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	payload := gin.H{
		"enrollment_id": enrollment.ID,
		"status":        enrollment.Status,
		"grade":         enrollment.Grade,
	}
	if enrollment.Grade != nil {
		payload["letter"] = enrollment.GradeLetter()
	}
	response.JSON(c, http.StatusOK, payload, nil)
}

// StudentAverage godoc
// @Summary Average grade over a student's completed courses
// @Tags Enrollments
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/grades/average [get]
func (h *EnrollmentHandler) StudentAverage(c *gin.Context) {
	avg, err := h.enrollments.StudentAverageGrade(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"average": avg}, nil)
}
