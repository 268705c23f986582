package memstore

import (
	"context"
	"database/sql"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zjgsu-ms/campus-course-api/internal/models"
	"github.com/zjgsu-ms/campus-course-api/internal/repository"
)

func newCourse(code string, capacity int) *models.Course {
	return &models.Course{
		Code:         code,
		Title:        "Course " + code,
		InstructorID: "i1",
		ScheduleID:   "sch1",
		Capacity:     capacity,
	}
}

func TestCourseStoreAdjustOccupancyBounds(t *testing.T) {
	store := NewCourseStore()
	ctx := context.Background()

	course := newCourse("CS101", 2)
	require.NoError(t, store.Create(ctx, course))

	for i := 1; i <= 2; i++ {
		updated, err := store.AdjustOccupancy(ctx, course.ID, 1)
		require.NoError(t, err)
		assert.Equal(t, i, updated.Enrolled)
	}

	_, err := store.AdjustOccupancy(ctx, course.ID, 1)
	assert.Equal(t, repository.ErrCourseFull, err)

	// Releasing more seats than are held clamps at zero.
	for i := 0; i < 3; i++ {
		_, err = store.AdjustOccupancy(ctx, course.ID, -1)
		require.NoError(t, err)
	}
	current, err := store.FindByID(ctx, course.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, current.Enrolled)

	_, err = store.AdjustOccupancy(ctx, "missing", 1)
	assert.Equal(t, sql.ErrNoRows, err)
}

func TestCourseStoreConcurrentAdjustNeverOversells(t *testing.T) {
	store := NewCourseStore()
	ctx := context.Background()

	course := newCourse("CS101", 5)
	require.NoError(t, store.Create(ctx, course))

	const contenders = 32
	var wg sync.WaitGroup
	var admitted int64
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.AdjustOccupancy(ctx, course.ID, 1); err == nil {
				atomic.AddInt64(&admitted, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(5), admitted)
	current, err := store.FindByID(ctx, course.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, current.Enrolled)
}

func TestCourseStoreCodeUniqueness(t *testing.T) {
	store := NewCourseStore()
	ctx := context.Background()

	first := newCourse("CS101", 30)
	require.NoError(t, store.Create(ctx, first))
	require.Error(t, store.Create(ctx, newCourse("CS101", 10)))

	second := newCourse("CS102", 30)
	require.NoError(t, store.Create(ctx, second))

	second.Code = "CS101"
	require.Error(t, store.Update(ctx, second))

	second.Code = "CS103"
	require.NoError(t, store.Update(ctx, second))

	found, err := store.FindByCode(ctx, "CS103")
	require.NoError(t, err)
	assert.Equal(t, second.ID, found.ID)
	_, err = store.FindByCode(ctx, "CS102")
	assert.Equal(t, sql.ErrNoRows, err)
}

func TestCourseStoreUpdatePreservesOccupancy(t *testing.T) {
	store := NewCourseStore()
	ctx := context.Background()

	course := newCourse("CS101", 30)
	require.NoError(t, store.Create(ctx, course))
	_, err := store.AdjustOccupancy(ctx, course.ID, 1)
	require.NoError(t, err)

	course.Title = "Renamed"
	course.Enrolled = 99
	require.NoError(t, store.Update(ctx, course))

	current, err := store.FindByID(ctx, course.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", current.Title)
	assert.Equal(t, 1, current.Enrolled)
	assert.Equal(t, 1, course.Enrolled)
}

func TestCourseStoreListSearchAndSort(t *testing.T) {
	store := NewCourseStore()
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, newCourse("CS101", 30)))
	require.NoError(t, store.Create(ctx, newCourse("CS201", 30)))
	require.NoError(t, store.Create(ctx, &models.Course{
		Code: "MA101", Title: "Calculus", InstructorID: "i2", ScheduleID: "sch2", Capacity: 40,
	}))

	all, total, err := store.List(ctx, models.CourseFilter{SortOrder: "asc"})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, all, 3)
	assert.Equal(t, "CS101", all[0].Code)

	cs, total, err := store.List(ctx, models.CourseFilter{Search: "cs", SortOrder: "asc"})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, cs, 2)
	assert.Equal(t, "CS101", cs[0].Code)

	byInstructor, total, err := store.List(ctx, models.CourseFilter{InstructorID: "i2"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, byInstructor, 1)
	assert.Equal(t, "MA101", byInstructor[0].Code)
}

func TestCourseStoreDelete(t *testing.T) {
	store := NewCourseStore()
	ctx := context.Background()

	course := newCourse("CS101", 30)
	require.NoError(t, store.Create(ctx, course))
	require.NoError(t, store.Delete(ctx, course.ID))

	_, err := store.FindByID(ctx, course.ID)
	assert.Equal(t, sql.ErrNoRows, err)
	_, err = store.FindByCode(ctx, "CS101")
	assert.Equal(t, sql.ErrNoRows, err)

	assert.Equal(t, sql.ErrNoRows, store.Delete(ctx, course.ID))
}
