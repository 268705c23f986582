package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/zjgsu-ms/campus-course-api/internal/models"
)

const enrollmentColumns = "id, course_id, student_id, enrolled_at, status, grade"

// EnrollmentRepository is the durable enrollment ledger. Mutations are
// expressed as conditional statements so that single-record updates are
// linearizable and the active-pair uniqueness invariant holds at the
// database level even across API replicas.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// List returns enrollments filtered by the provided criteria.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, int, error) {
	var conditions []string
	var args []interface{}

	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.ActiveOnly {
		conditions = append(conditions, fmt.Sprintf("status <> $%d", len(args)+1))
		args = append(args, models.EnrollmentStatusWithdrawn)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s FROM enrollments%s ORDER BY enrolled_at %s LIMIT %d OFFSET %d",
		enrollmentColumns, clause, order, size, offset)

	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	countQuery := "SELECT COUNT(*) FROM enrollments" + clause
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	query := fmt.Sprintf("SELECT %s FROM enrollments WHERE id = $1", enrollmentColumns)
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// FindActiveByPair returns the single ENROLLED record for the pair, if any.
func (r *EnrollmentRepository) FindActiveByPair(ctx context.Context, courseID, studentID string) (*models.Enrollment, error) {
	query := fmt.Sprintf("SELECT %s FROM enrollments WHERE course_id = $1 AND student_id = $2 AND status = $3 LIMIT 1", enrollmentColumns)
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, courseID, studentID, models.EnrollmentStatusEnrolled); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// FindLatestByPair returns the most recent record for the pair regardless
// of status; re-enrollments make the pair history-bearing.
func (r *EnrollmentRepository) FindLatestByPair(ctx context.Context, courseID, studentID string) (*models.Enrollment, error) {
	query := fmt.Sprintf("SELECT %s FROM enrollments WHERE course_id = $1 AND student_id = $2 ORDER BY enrolled_at DESC LIMIT 1", enrollmentColumns)
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, courseID, studentID); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// Create inserts a new ENROLLED record, conditional on no other ENROLLED
// record existing for the pair. Returns ErrDuplicateEnrollment when the
// condition fails.
func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.EnrolledAt.IsZero() {
		enrollment.EnrolledAt = time.Now().UTC()
	}
	enrollment.Status = models.EnrollmentStatusEnrolled

	const query = `INSERT INTO enrollments (id, course_id, student_id, enrolled_at, status, grade)
        SELECT $1, $2, $3, $4, $5, NULL
        WHERE NOT EXISTS (
            SELECT 1 FROM enrollments WHERE course_id = $2 AND student_id = $3 AND status = $5
        )`
	res, err := r.db.ExecContext(ctx, query,
		enrollment.ID, enrollment.CourseID, enrollment.StudentID, enrollment.EnrolledAt, enrollment.Status)
	if err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}
	if affected == 0 {
		return ErrDuplicateEnrollment
	}
	return nil
}

// UpdateStatus performs a conditional from->to transition on an ungraded
// record. Returns ErrStaleTransition when the record is not in the expected
// state anymore.
func (r *EnrollmentRepository) UpdateStatus(ctx context.Context, id string, from, to models.EnrollmentStatus) error {
	const query = `UPDATE enrollments SET status = $3 WHERE id = $1 AND status = $2 AND grade IS NULL`
	res, err := r.db.ExecContext(ctx, query, id, from, to)
	if err != nil {
		return fmt.Errorf("update enrollment status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update enrollment status: %w", err)
	}
	if affected == 0 {
		return ErrStaleTransition
	}
	return nil
}

// UpdateGrade sets the grade and its derived status, conditional on the
// record still being gradeable (ENROLLED or COMPLETED).
func (r *EnrollmentRepository) UpdateGrade(ctx context.Context, id string, grade float64, status models.EnrollmentStatus) (*models.Enrollment, error) {
	query := fmt.Sprintf(`UPDATE enrollments SET grade = $2, status = $3
        WHERE id = $1 AND status IN ($4, $5) RETURNING %s`, enrollmentColumns)
	var enrollment models.Enrollment
	err := r.db.GetContext(ctx, &enrollment, query, id, grade, status,
		models.EnrollmentStatusEnrolled, models.EnrollmentStatusCompleted)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrStaleTransition
		}
		return nil, fmt.Errorf("update enrollment grade: %w", err)
	}
	return &enrollment, nil
}

// CountActiveByCourse counts records occupying a seat in the course.
func (r *EnrollmentRepository) CountActiveByCourse(ctx context.Context, courseID string) (int, error) {
	const query = `SELECT COUNT(*) FROM enrollments WHERE course_id = $1 AND status <> $2`
	var count int
	if err := r.db.GetContext(ctx, &count, query, courseID, models.EnrollmentStatusWithdrawn); err != nil {
		return 0, fmt.Errorf("count course enrollments: %w", err)
	}
	return count, nil
}

// CountActiveByStudent counts a student's non-withdrawn enrollments.
func (r *EnrollmentRepository) CountActiveByStudent(ctx context.Context, studentID string) (int, error) {
	const query = `SELECT COUNT(*) FROM enrollments WHERE student_id = $1 AND status <> $2`
	var count int
	if err := r.db.GetContext(ctx, &count, query, studentID, models.EnrollmentStatusWithdrawn); err != nil {
		return 0, fmt.Errorf("count student enrollments: %w", err)
	}
	return count, nil
}

// HasActiveOrCompletedByStudent reports whether the student holds an
// enrollment that blocks removal from the directory.
func (r *EnrollmentRepository) HasActiveOrCompletedByStudent(ctx context.Context, studentID string) (bool, error) {
	const query = `SELECT 1 FROM enrollments WHERE student_id = $1 AND status IN ($2, $3) LIMIT 1`
	var exists int
	err := r.db.GetContext(ctx, &exists, query, studentID,
		models.EnrollmentStatusEnrolled, models.EnrollmentStatusCompleted)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check student enrollments: %w", err)
	}
	return true, nil
}

// AverageCompletedGrade returns the mean grade over the student's COMPLETED
// enrollments, or nil when none are graded.
func (r *EnrollmentRepository) AverageCompletedGrade(ctx context.Context, studentID string) (*float64, error) {
	const query = `SELECT AVG(grade) FROM enrollments WHERE student_id = $1 AND status = $2 AND grade IS NOT NULL`
	var avg sql.NullFloat64
	if err := r.db.GetContext(ctx, &avg, query, studentID, models.EnrollmentStatusCompleted); err != nil {
		return nil, fmt.Errorf("average student grade: %w", err)
	}
	if !avg.Valid {
		return nil, nil
	}
	return &avg.Float64, nil
}
