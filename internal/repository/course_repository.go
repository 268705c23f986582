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

const courseColumns = "id, code, title, instructor_id, schedule_id, capacity, enrolled, created_at"

// CourseRepository handles persistence of courses.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// List returns courses filtered by the provided criteria.
func (r *CourseRepository) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error) {
	var conditions []string
	var args []interface{}

	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(code ILIKE $%d OR title ILIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}
	if filter.InstructorID != "" {
		conditions = append(conditions, fmt.Sprintf("instructor_id = $%d", len(args)+1))
		args = append(args, filter.InstructorID)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"code":       "code",
		"title":      "title",
		"created_at": "created_at",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "created_at"
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

	query := fmt.Sprintf("SELECT %s FROM courses%s ORDER BY %s %s LIMIT %d OFFSET %d",
		courseColumns, clause, orderBy, order, size, offset)

	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list courses: %w", err)
	}

	countQuery := "SELECT COUNT(*) FROM courses" + clause
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count courses: %w", err)
	}
	return courses, total, nil
}

// FindByID returns a course by its ID.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	query := fmt.Sprintf("SELECT %s FROM courses WHERE id = $1", courseColumns)
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		return nil, err
	}
	return &course, nil
}

// FindByCode returns a course by its unique code.
func (r *CourseRepository) FindByCode(ctx context.Context, code string) (*models.Course, error) {
	query := fmt.Sprintf("SELECT %s FROM courses WHERE code = $1", courseColumns)
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, code); err != nil {
		return nil, err
	}
	return &course, nil
}

// Create persists a new course with zero occupancy.
func (r *CourseRepository) Create(ctx context.Context, course *models.Course) error {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	if course.CreatedAt.IsZero() {
		course.CreatedAt = time.Now().UTC()
	}
	course.Enrolled = 0
	const query = `INSERT INTO courses (id, code, title, instructor_id, schedule_id, capacity, enrolled, created_at)
        VALUES (:id, :code, :title, :instructor_id, :schedule_id, :capacity, :enrolled, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("create course: %w", err)
	}
	return nil
}

// Update persists mutable course fields. Occupancy is excluded: it moves
// only through AdjustOccupancy.
func (r *CourseRepository) Update(ctx context.Context, course *models.Course) error {
	const query = `UPDATE courses SET code = :code, title = :title, instructor_id = :instructor_id,
        schedule_id = :schedule_id, capacity = :capacity WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, course)
	if err != nil {
		return fmt.Errorf("update course: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a course.
func (r *CourseRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM courses WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete course: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// AdjustOccupancy atomically moves the occupancy counter by delta (+1 or -1).
// An increment is conditional on a free seat and returns ErrCourseFull when
// the course is full; a decrement is clamped at zero. The updated course is
// returned.
func (r *CourseRepository) AdjustOccupancy(ctx context.Context, id string, delta int) (*models.Course, error) {
	var query string
	switch delta {
	case 1:
		query = fmt.Sprintf(`UPDATE courses SET enrolled = enrolled + 1
            WHERE id = $1 AND enrolled < capacity RETURNING %s`, courseColumns)
	case -1:
		query = fmt.Sprintf(`UPDATE courses SET enrolled = GREATEST(enrolled - 1, 0)
            WHERE id = $1 RETURNING %s`, courseColumns)
	default:
		return nil, fmt.Errorf("adjust occupancy: unsupported delta %d", delta)
	}

	var course models.Course
	err := r.db.GetContext(ctx, &course, query, id)
	if err == nil {
		return &course, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("adjust occupancy: %w", err)
	}
	if delta == 1 {
		// No row matched: either the course is full or it does not exist.
		if _, findErr := r.FindByID(ctx, id); findErr == nil {
			return nil, ErrCourseFull
		}
	}
	return nil, sql.ErrNoRows
}
