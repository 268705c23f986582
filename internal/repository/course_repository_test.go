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
)

func newCourseRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func courseRow(id string, capacity, enrolled int) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "code", "title", "instructor_id", "schedule_id", "capacity", "enrolled", "created_at"}).
		AddRow(id, "CS101", "Programming", "ins-1", "sch-1", capacity, enrolled, time.Now())
}

func TestCourseRepositoryAdjustOccupancyIncrement(t *testing.T) {
	db, mock, cleanup := newCourseRepoMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE courses SET enrolled = enrolled + 1")).
		WithArgs("course-1").
		WillReturnRows(courseRow("course-1", 30, 12))

	course, err := repo.AdjustOccupancy(context.Background(), "course-1", 1)
	require.NoError(t, err)
	require.Equal(t, 12, course.Enrolled)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryAdjustOccupancyFull(t *testing.T) {
	db, mock, cleanup := newCourseRepoMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE courses SET enrolled = enrolled + 1")).
		WithArgs("course-1").
		WillReturnError(sql.ErrNoRows)
	// The conditional update matched nothing; the follow-up read tells a
	// full course apart from a missing one.
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, code, title, instructor_id, schedule_id, capacity, enrolled, created_at FROM courses WHERE id = $1")).
		WithArgs("course-1").
		WillReturnRows(courseRow("course-1", 30, 30))

	_, err := repo.AdjustOccupancy(context.Background(), "course-1", 1)
	require.ErrorIs(t, err, ErrCourseFull)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryAdjustOccupancyMissingCourse(t *testing.T) {
	db, mock, cleanup := newCourseRepoMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE courses SET enrolled = enrolled + 1")).
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(regexp.QuoteMeta("FROM courses WHERE id = $1")).
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.AdjustOccupancy(context.Background(), "ghost", 1)
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryAdjustOccupancyDecrement(t *testing.T) {
	db, mock, cleanup := newCourseRepoMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE courses SET enrolled = GREATEST(enrolled - 1, 0)")).
		WithArgs("course-1").
		WillReturnRows(courseRow("course-1", 30, 0))

	course, err := repo.AdjustOccupancy(context.Background(), "course-1", -1)
	require.NoError(t, err)
	require.Equal(t, 0, course.Enrolled)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryAdjustOccupancyUnsupportedDelta(t *testing.T) {
	db, _, cleanup := newCourseRepoMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	_, err := repo.AdjustOccupancy(context.Background(), "course-1", 2)
	require.Error(t, err)
}

func TestCourseRepositoryFindByCode(t *testing.T) {
	db, mock, cleanup := newCourseRepoMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM courses WHERE code = $1")).
		WithArgs("CS101").
		WillReturnRows(courseRow("course-1", 30, 5))

	course, err := repo.FindByCode(context.Background(), "CS101")
	require.NoError(t, err)
	require.Equal(t, "course-1", course.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}
