package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/zjgsu-ms/campus-course-api/internal/models"
)

func newEnrollmentRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestEnrollmentRepositoryCreateInserts(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO enrollments")).
		WithArgs(sqlmock.AnyArg(), "course-1", "stu-1", sqlmock.AnyArg(), models.EnrollmentStatusEnrolled).
		WillReturnResult(sqlmock.NewResult(0, 1))

	enrollment := &models.Enrollment{CourseID: "course-1", StudentID: "stu-1"}
	require.NoError(t, repo.Create(context.Background(), enrollment))
	require.NotEmpty(t, enrollment.ID)
	require.Equal(t, models.EnrollmentStatusEnrolled, enrollment.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCreateRejectsActiveDuplicate(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO enrollments")).
		WithArgs(sqlmock.AnyArg(), "course-1", "stu-1", sqlmock.AnyArg(), models.EnrollmentStatusEnrolled).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Create(context.Background(), &models.Enrollment{CourseID: "course-1", StudentID: "stu-1"})
	require.ErrorIs(t, err, ErrDuplicateEnrollment)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryUpdateStatus(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET status = $3 WHERE id = $1 AND status = $2 AND grade IS NULL")).
		WithArgs("enr-1", models.EnrollmentStatusEnrolled, models.EnrollmentStatusWithdrawn).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateStatus(context.Background(), "enr-1", models.EnrollmentStatusEnrolled, models.EnrollmentStatusWithdrawn)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryUpdateStatusStale(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET status = $3")).
		WithArgs("enr-1", models.EnrollmentStatusEnrolled, models.EnrollmentStatusWithdrawn).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStatus(context.Background(), "enr-1", models.EnrollmentStatusEnrolled, models.EnrollmentStatusWithdrawn)
	require.ErrorIs(t, err, ErrStaleTransition)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryUpdateGrade(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	rows := sqlmock.NewRows([]string{"id", "course_id", "student_id", "enrolled_at", "status", "grade"}).
		AddRow("enr-1", "course-1", "stu-1", time.Now(), models.EnrollmentStatusCompleted, 85.5)
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE enrollments SET grade = $2, status = $3")).
		WithArgs("enr-1", 85.5, models.EnrollmentStatusCompleted,
			models.EnrollmentStatusEnrolled, models.EnrollmentStatusCompleted).
		WillReturnRows(rows)

	enrollment, err := repo.UpdateGrade(context.Background(), "enr-1", 85.5, models.EnrollmentStatusCompleted)
	require.NoError(t, err)
	require.Equal(t, models.EnrollmentStatusCompleted, enrollment.Status)
	require.NotNil(t, enrollment.Grade)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryUpdateGradeStale(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE enrollments SET grade = $2, status = $3")).
		WithArgs("enr-1", 85.5, models.EnrollmentStatusCompleted,
			models.EnrollmentStatusEnrolled, models.EnrollmentStatusCompleted).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.UpdateGrade(context.Background(), "enr-1", 85.5, models.EnrollmentStatusCompleted)
	require.ErrorIs(t, err, ErrStaleTransition)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryFindActiveByPair(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, course_id, student_id, enrolled_at, status, grade FROM enrollments WHERE course_id = $1 AND student_id = $2 AND status = $3 LIMIT 1")).
		WithArgs("course-1", "stu-1", models.EnrollmentStatusEnrolled).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindActiveByPair(context.Background(), "course-1", "stu-1")
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryAverageCompletedGrade(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT AVG(grade) FROM enrollments WHERE student_id = $1 AND status = $2 AND grade IS NOT NULL")).
		WithArgs("stu-1", models.EnrollmentStatusCompleted).
		WillReturnRows(sqlmock.NewRows([]string{"avg"}).AddRow(87.25))

	avg, err := repo.AverageCompletedGrade(context.Background(), "stu-1")
	require.NoError(t, err)
	require.NotNil(t, avg)
	require.Equal(t, 87.25, *avg)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryAverageCompletedGradeNoCompletions(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT AVG(grade) FROM enrollments")).
		WithArgs("stu-1", models.EnrollmentStatusCompleted).
		WillReturnRows(sqlmock.NewRows([]string{"avg"}).AddRow(nil))

	avg, err := repo.AverageCompletedGrade(context.Background(), "stu-1")
	require.NoError(t, err)
	require.Nil(t, avg)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryHasActiveOrCompletedByStudent(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM enrollments WHERE student_id = $1 AND status IN ($2, $3) LIMIT 1")).
		WithArgs("stu-1", models.EnrollmentStatusEnrolled, models.EnrollmentStatusCompleted).
		WillReturnError(sql.ErrNoRows)

	blocked, err := repo.HasActiveOrCompletedByStudent(context.Background(), "stu-1")
	require.NoError(t, err)
	require.False(t, blocked)
	require.NoError(t, mock.ExpectationsWereMet())
}
