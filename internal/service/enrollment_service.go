package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/zjgsu-ms/campus-course-api/internal/models"
	"github.com/zjgsu-ms/campus-course-api/internal/repository"
	appErrors "github.com/zjgsu-ms/campus-course-api/pkg/errors"
)

type enrollmentLedger interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, int, error)
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	FindActiveByPair(ctx context.Context, courseID, studentID string) (*models.Enrollment, error)
	FindLatestByPair(ctx context.Context, courseID, studentID string) (*models.Enrollment, error)
	Create(ctx context.Context, enrollment *models.Enrollment) error
	UpdateStatus(ctx context.Context, id string, from, to models.EnrollmentStatus) error
	UpdateGrade(ctx context.Context, id string, grade float64, status models.EnrollmentStatus) (*models.Enrollment, error)
	CountActiveByCourse(ctx context.Context, courseID string) (int, error)
	CountActiveByStudent(ctx context.Context, studentID string) (int, error)
	AverageCompletedGrade(ctx context.Context, studentID string) (*float64, error)
}

type courseDirectory interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
	AdjustOccupancy(ctx context.Context, id string, delta int) (*models.Course, error)
}

type studentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

type cacheInvalidator interface {
	DeleteByPattern(ctx context.Context, pattern string) error
}

// EnrollRequest describes an admission attempt.
type EnrollRequest struct {
	CourseID  string `json:"course_id" validate:"required"`
	StudentID string `json:"student_id" validate:"required"`
}

// WithdrawRequest describes a withdrawal attempt.
type WithdrawRequest struct {
	CourseID  string `json:"course_id" validate:"required"`
	StudentID string `json:"student_id" validate:"required"`
}

// GradeRequest carries a grade assignment.
type GradeRequest struct {
	Grade float64 `json:"grade" validate:"min=0,max=100"`
}

// EnrollmentService is the admission engine. It serializes seat-critical
// sections per course with a keyed mutex on top of the ledger's conditional
// primitives, so capacity and pair-uniqueness invariants hold with no
// caller-visible partial state.
type EnrollmentService struct {
	ledger    enrollmentLedger
	courses   courseDirectory
	students  studentReader
	cache     cacheInvalidator
	audit     *AuditService
	metrics   *MetricsService
	locks     courseLock
	validator *validator.Validate
	logger    *zap.Logger
}

// NewEnrollmentService constructs the admission engine. Cache, audit, and
// metrics are optional.
func NewEnrollmentService(
	ledger enrollmentLedger,
	courses courseDirectory,
	students studentReader,
	cache cacheInvalidator,
	audit *AuditService,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{
		ledger:    ledger,
		courses:   courses,
		students:  students,
		cache:     cache,
		audit:     audit,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
	}
}

// Enroll admits a student to a course: seat reservation and record creation
// happen under the course lock, with the reservation rolled back when the
// record cannot be created.
func (s *EnrollmentService) Enroll(ctx context.Context, req EnrollRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}

	if _, err := s.students.FindByID(ctx, req.StudentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	unlock := s.locks.Lock(req.CourseID)
	defer unlock()

	if _, err := s.ledger.FindActiveByPair(ctx, req.CourseID, req.StudentID); err == nil {
		s.metrics.RecordAdmission(AdmissionDuplicate)
		return nil, appErrors.Clone(appErrors.ErrConflict, "student already enrolled in this course")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}

	course, err := s.courses.AdjustOccupancy(ctx, req.CourseID, 1)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrCourseFull):
			s.metrics.RecordAdmission(AdmissionCourseFull)
			return nil, appErrors.Clone(appErrors.ErrCapacityExceeded, "course is full")
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		default:
			s.metrics.RecordAdmission(AdmissionError)
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reserve seat")
		}
	}

	enrollment := &models.Enrollment{
		CourseID:  req.CourseID,
		StudentID: req.StudentID,
	}
	if err := s.ledger.Create(ctx, enrollment); err != nil {
		s.releaseSeat(ctx, req.CourseID)
		if errors.Is(err, repository.ErrDuplicateEnrollment) {
			s.metrics.RecordAdmission(AdmissionDuplicate)
			return nil, appErrors.Clone(appErrors.ErrConflict, "student already enrolled in this course")
		}
		s.metrics.RecordAdmission(AdmissionError)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
	}

	s.invalidateCourseCache(ctx, req.CourseID)
	s.metrics.RecordAdmission(AdmissionAdmitted)
	s.audit.Record(models.EnrollmentEvent{
		EnrollmentID: enrollment.ID,
		CourseID:     enrollment.CourseID,
		StudentID:    enrollment.StudentID,
		Type:         models.EventEnrolled,
	})
	s.logger.Sugar().Infow("student enrolled",
		"course_id", course.ID, "student_id", req.StudentID, "seats_left", course.SeatsLeft())
	return enrollment, nil
}

// Withdraw releases a student's seat. It reports false without error when
// the pair has no active enrollment, making repeated withdrawals idempotent.
// A graded record cannot be withdrawn.
func (s *EnrollmentService) Withdraw(ctx context.Context, req WithdrawRequest) (bool, error) {
	if err := s.validator.Struct(req); err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid withdrawal payload")
	}

	unlock := s.locks.Lock(req.CourseID)
	defer unlock()

	active, err := s.ledger.FindActiveByPair(ctx, req.CourseID, req.StudentID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
		}
		// No active record: a graded one conflicts, anything else is a no-op.
		latest, latestErr := s.ledger.FindLatestByPair(ctx, req.CourseID, req.StudentID)
		if latestErr != nil {
			if errors.Is(latestErr, sql.ErrNoRows) {
				return false, nil
			}
			return false, appErrors.Wrap(latestErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
		}
		if latest.Grade != nil && latest.Status != models.EnrollmentStatusWithdrawn {
			return false, appErrors.Clone(appErrors.ErrConflict, "cannot withdraw a graded enrollment")
		}
		return false, nil
	}

	if !active.CanWithdraw() {
		return false, appErrors.Clone(appErrors.ErrConflict, "cannot withdraw a graded enrollment")
	}

	if err := s.ledger.UpdateStatus(ctx, active.ID, models.EnrollmentStatusEnrolled, models.EnrollmentStatusWithdrawn); err != nil {
		if errors.Is(err, repository.ErrStaleTransition) {
			return false, nil
		}
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to withdraw enrollment")
	}

	if _, err := s.courses.AdjustOccupancy(ctx, req.CourseID, -1); err != nil && !errors.Is(err, sql.ErrNoRows) {
		// Seat release failed: restore the record so state stays consistent.
		if restoreErr := s.ledger.UpdateStatus(ctx, active.ID, models.EnrollmentStatusWithdrawn, models.EnrollmentStatusEnrolled); restoreErr != nil {
			s.logger.Sugar().Errorw("failed to restore enrollment after seat release failure",
				"enrollment_id", active.ID, "error", restoreErr)
		}
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to release seat")
	}

	s.invalidateCourseCache(ctx, req.CourseID)
	s.audit.Record(models.EnrollmentEvent{
		EnrollmentID: active.ID,
		CourseID:     req.CourseID,
		StudentID:    req.StudentID,
		Type:         models.EventWithdrawn,
	})
	s.logger.Sugar().Infow("student withdrawn", "course_id", req.CourseID, "student_id", req.StudentID)
	return true, nil
}

// UpdateGrade assigns a grade to an enrollment, deriving the final status
// from the passing threshold. WITHDRAWN and FAILED records are terminal;
// COMPLETED records may be re-graded. The seat is never released by grading.
func (s *EnrollmentService) UpdateGrade(ctx context.Context, enrollmentID string, req GradeRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "grade must be between 0.0 and 100.0")
	}

	current, err := s.ledger.FindByID(ctx, enrollmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if !current.Status.Gradeable() {
		return nil, appErrors.Clone(appErrors.ErrConflict,
			fmt.Sprintf("cannot grade enrollment in status %s", current.Status))
	}

	status := models.StatusForGrade(req.Grade)
	updated, err := s.ledger.UpdateGrade(ctx, enrollmentID, req.Grade, status)
	if err != nil {
		if errors.Is(err, repository.ErrStaleTransition) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "enrollment is no longer gradeable")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update grade")
	}

	s.invalidateCourseCache(ctx, updated.CourseID)
	s.audit.Record(models.EnrollmentEvent{
		EnrollmentID: updated.ID,
		CourseID:     updated.CourseID,
		StudentID:    updated.StudentID,
		Type:         models.EventGraded,
		Grade:        updated.Grade,
	})
	s.logger.Sugar().Infow("enrollment graded",
		"enrollment_id", updated.ID, "grade", req.Grade, "status", updated.Status)
	return updated, nil
}

// List returns enrollments with pagination metadata.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, *models.Pagination, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown enrollment status")
	}
	enrollments, total, err := s.ledger.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return enrollments, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a single enrollment.
func (s *EnrollmentService) Get(ctx context.Context, id string) (*models.Enrollment, error) {
	enrollment, err := s.ledger.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return enrollment, nil
}

// IsEnrolled reports whether the pair currently holds an ENROLLED record.
func (s *EnrollmentService) IsEnrolled(ctx context.Context, courseID, studentID string) (bool, error) {
	if courseID == "" || studentID == "" {
		return false, appErrors.Clone(appErrors.ErrValidation, "course_id and student_id are required")
	}
	_, err := s.ledger.FindActiveByPair(ctx, courseID, studentID)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
}

// CountByCourse returns the number of seats held in the course.
func (s *EnrollmentService) CountByCourse(ctx context.Context, courseID string) (int, error) {
	if _, err := s.courses.FindByID(ctx, courseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	count, err := s.ledger.CountActiveByCourse(ctx, courseID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count enrollments")
	}
	return count, nil
}

// CountByStudent returns the student's non-withdrawn enrollment count.
func (s *EnrollmentService) CountByStudent(ctx context.Context, studentID string) (int, error) {
	if _, err := s.students.FindByID(ctx, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	count, err := s.ledger.CountActiveByStudent(ctx, studentID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count enrollments")
	}
	return count, nil
}

// StudentGrade returns the most recent record for the pair, graded or not.
func (s *EnrollmentService) StudentGrade(ctx context.Context, studentID, courseID string) (*models.Enrollment, error) {
	enrollment, err := s.ledger.FindLatestByPair(ctx, courseID, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no enrollment found for student in course")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return enrollment, nil
}

// StudentAverageGrade returns the mean over COMPLETED enrollments, or nil
// when the student has none.
func (s *EnrollmentService) StudentAverageGrade(ctx context.Context, studentID string) (*float64, error) {
	if _, err := s.students.FindByID(ctx, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	avg, err := s.ledger.AverageCompletedGrade(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute average grade")
	}
	return avg, nil
}

// Roster assembles the course's active enrollments with student details.
func (s *EnrollmentService) Roster(ctx context.Context, courseID string) (*models.CourseRoster, error) {
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	filter := models.EnrollmentFilter{
		CourseID:   courseID,
		ActiveOnly: true,
		PageSize:   100,
		SortOrder:  "asc",
	}
	var enrollments []models.Enrollment
	for page := 1; ; page++ {
		filter.Page = page
		batch, total, err := s.ledger.List(ctx, filter)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
		}
		enrollments = append(enrollments, batch...)
		if len(batch) == 0 || len(enrollments) >= total {
			break
		}
	}

	roster := &models.CourseRoster{Course: *course}
	for _, enrollment := range enrollments {
		student, err := s.students.FindByID(ctx, enrollment.StudentID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
		}
		roster.Entries = append(roster.Entries, models.RosterEntry{Enrollment: enrollment, Student: *student})
	}
	return roster, nil
}

func (s *EnrollmentService) releaseSeat(ctx context.Context, courseID string) {
	if _, err := s.courses.AdjustOccupancy(ctx, courseID, -1); err != nil {
		s.logger.Sugar().Errorw("failed to roll back seat reservation", "course_id", courseID, "error", err)
	}
}

func (s *EnrollmentService) invalidateCourseCache(ctx context.Context, courseID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, courseCachePattern(courseID)); err != nil {
		s.logger.Sugar().Warnw("failed to invalidate course cache", "course_id", courseID, "error", err)
	}
}
