package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zjgsu-ms/campus-course-api/internal/models"
	"github.com/zjgsu-ms/campus-course-api/internal/repository"
	appErrors "github.com/zjgsu-ms/campus-course-api/pkg/errors"
)

type mockLedger struct {
	records    map[string]*models.Enrollment
	order      []string
	seq        int
	failCreate error
}

func newMockLedger() *mockLedger {
	return &mockLedger{records: make(map[string]*models.Enrollment)}
}

func (m *mockLedger) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, int, error) {
	var out []models.Enrollment
	for _, id := range m.order {
		rec := m.records[id]
		if filter.CourseID != "" && rec.CourseID != filter.CourseID {
			continue
		}
		if filter.StudentID != "" && rec.StudentID != filter.StudentID {
			continue
		}
		if filter.Status != "" && rec.Status != filter.Status {
			continue
		}
		if filter.ActiveOnly && rec.Status == models.EnrollmentStatusWithdrawn {
			continue
		}
		out = append(out, *rec)
	}
	return out, len(out), nil
}

func (m *mockLedger) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	if rec, ok := m.records[id]; ok {
		out := *rec
		return &out, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockLedger) FindActiveByPair(ctx context.Context, courseID, studentID string) (*models.Enrollment, error) {
	for _, id := range m.order {
		rec := m.records[id]
		if rec.CourseID == courseID && rec.StudentID == studentID && rec.Status == models.EnrollmentStatusEnrolled {
			out := *rec
			return &out, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockLedger) FindLatestByPair(ctx context.Context, courseID, studentID string) (*models.Enrollment, error) {
	for i := len(m.order) - 1; i >= 0; i-- {
		rec := m.records[m.order[i]]
		if rec.CourseID == courseID && rec.StudentID == studentID {
			out := *rec
			return &out, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockLedger) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if m.failCreate != nil {
		return m.failCreate
	}
	if _, err := m.FindActiveByPair(ctx, enrollment.CourseID, enrollment.StudentID); err == nil {
		return repository.ErrDuplicateEnrollment
	}
	m.seq++
	enrollment.ID = fmt.Sprintf("enr-%d", m.seq)
	enrollment.Status = models.EnrollmentStatusEnrolled
	enrollment.EnrolledAt = time.Now().UTC()
	stored := *enrollment
	m.records[stored.ID] = &stored
	m.order = append(m.order, stored.ID)
	return nil
}

func (m *mockLedger) UpdateStatus(ctx context.Context, id string, from, to models.EnrollmentStatus) error {
	rec, ok := m.records[id]
	if !ok || rec.Status != from || rec.Grade != nil {
		return repository.ErrStaleTransition
	}
	rec.Status = to
	return nil
}

func (m *mockLedger) UpdateGrade(ctx context.Context, id string, grade float64, status models.EnrollmentStatus) (*models.Enrollment, error) {
	rec, ok := m.records[id]
	if !ok || !rec.Status.Gradeable() {
		return nil, repository.ErrStaleTransition
	}
	g := grade
	rec.Grade = &g
	rec.Status = status
	out := *rec
	return &out, nil
}

func (m *mockLedger) CountActiveByCourse(ctx context.Context, courseID string) (int, error) {
	count := 0
	for _, rec := range m.records {
		if rec.CourseID == courseID && rec.Status.Active() {
			count++
		}
	}
	return count, nil
}

func (m *mockLedger) CountActiveByStudent(ctx context.Context, studentID string) (int, error) {
	count := 0
	for _, rec := range m.records {
		if rec.StudentID == studentID && rec.Status.Active() {
			count++
		}
	}
	return count, nil
}

func (m *mockLedger) AverageCompletedGrade(ctx context.Context, studentID string) (*float64, error) {
	var sum float64
	var count int
	for _, rec := range m.records {
		if rec.StudentID == studentID && rec.Status == models.EnrollmentStatusCompleted && rec.Grade != nil {
			sum += *rec.Grade
			count++
		}
	}
	if count == 0 {
		return nil, nil
	}
	avg := sum / float64(count)
	return &avg, nil
}

type mockCourses struct {
	courses     map[string]*models.Course
	failRelease bool
}

func (m *mockCourses) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if course, ok := m.courses[id]; ok {
		out := *course
		return &out, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockCourses) AdjustOccupancy(ctx context.Context, id string, delta int) (*models.Course, error) {
	course, ok := m.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	if delta > 0 && course.Enrolled >= course.Capacity {
		return nil, repository.ErrCourseFull
	}
	if delta < 0 && m.failRelease {
		return nil, errors.New("storage fault")
	}
	course.Enrolled += delta
	if course.Enrolled < 0 {
		course.Enrolled = 0
	}
	out := *course
	return &out, nil
}

type mockStudents struct {
	students map[string]*models.Student
}

func (m *mockStudents) FindByID(ctx context.Context, id string) (*models.Student, error) {
	if student, ok := m.students[id]; ok {
		out := *student
		return &out, nil
	}
	return nil, sql.ErrNoRows
}

type mockCache struct {
	patterns []string
}

func (m *mockCache) DeleteByPattern(ctx context.Context, pattern string) error {
	m.patterns = append(m.patterns, pattern)
	return nil
}

func newAdmissionFixture() (*EnrollmentService, *mockLedger, *mockCourses, *mockCache) {
	ledger := newMockLedger()
	courses := &mockCourses{courses: map[string]*models.Course{
		"c1": {ID: "c1", Code: "CS101", Title: "Programming", Capacity: 2},
	}}
	students := &mockStudents{students: map[string]*models.Student{
		"s1": {ID: "s1", StudentNo: "2023001", FullName: "Alice"},
		"s2": {ID: "s2", StudentNo: "2023002", FullName: "Bob"},
		"s3": {ID: "s3", StudentNo: "2023003", FullName: "Carol"},
	}}
	cache := &mockCache{}
	svc := NewEnrollmentService(ledger, courses, students, cache, nil, nil, validator.New(), zap.NewNop())
	return svc, ledger, courses, cache
}

func errCode(t *testing.T, err error) string {
	t.Helper()
	require.Error(t, err)
	return appErrors.FromError(err).Code
}

func TestEnrollAdmitsStudent(t *testing.T) {
	svc, ledger, courses, cache := newAdmissionFixture()

	enrollment, err := svc.Enroll(context.Background(), EnrollRequest{CourseID: "c1", StudentID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusEnrolled, enrollment.Status)
	assert.Nil(t, enrollment.Grade)
	assert.Equal(t, 1, courses.courses["c1"].Enrolled)
	assert.Len(t, ledger.records, 1)
	assert.Contains(t, cache.patterns, "course:c1*")
}

func TestEnrollRejectsWhenCourseFull(t *testing.T) {
	svc, ledger, courses, _ := newAdmissionFixture()
	courses.courses["c1"].Capacity = 1

	_, err := svc.Enroll(context.Background(), EnrollRequest{CourseID: "c1", StudentID: "s1"})
	require.NoError(t, err)

	_, err = svc.Enroll(context.Background(), EnrollRequest{CourseID: "c1", StudentID: "s2"})
	assert.Equal(t, appErrors.ErrCapacityExceeded.Code, errCode(t, err))
	assert.Equal(t, 1, courses.courses["c1"].Enrolled)
	assert.Len(t, ledger.records, 1)
}

func TestEnrollRejectsDuplicate(t *testing.T) {
	svc, ledger, courses, _ := newAdmissionFixture()

	_, err := svc.Enroll(context.Background(), EnrollRequest{CourseID: "c1", StudentID: "s1"})
	require.NoError(t, err)

	_, err = svc.Enroll(context.Background(), EnrollRequest{CourseID: "c1", StudentID: "s1"})
	assert.Equal(t, appErrors.ErrConflict.Code, errCode(t, err))
	assert.Equal(t, 1, courses.courses["c1"].Enrolled)
	assert.Len(t, ledger.records, 1)
}

func TestEnrollRollsBackSeatWhenCreateFails(t *testing.T) {
	svc, ledger, courses, _ := newAdmissionFixture()
	ledger.failCreate = errors.New("storage fault")

	_, err := svc.Enroll(context.Background(), EnrollRequest{CourseID: "c1", StudentID: "s1"})
	assert.Equal(t, appErrors.ErrInternal.Code, errCode(t, err))
	assert.Equal(t, 0, courses.courses["c1"].Enrolled)
	assert.Empty(t, ledger.records)
}

func TestEnrollUnknownStudent(t *testing.T) {
	svc, _, _, _ := newAdmissionFixture()
	_, err := svc.Enroll(context.Background(), EnrollRequest{CourseID: "c1", StudentID: "ghost"})
	assert.Equal(t, appErrors.ErrNotFound.Code, errCode(t, err))
}

func TestEnrollUnknownCourse(t *testing.T) {
	svc, _, _, _ := newAdmissionFixture()
	_, err := svc.Enroll(context.Background(), EnrollRequest{CourseID: "ghost", StudentID: "s1"})
	assert.Equal(t, appErrors.ErrNotFound.Code, errCode(t, err))
}

func TestEnrollValidatesPayload(t *testing.T) {
	svc, _, _, _ := newAdmissionFixture()
	_, err := svc.Enroll(context.Background(), EnrollRequest{CourseID: "c1"})
	assert.Equal(t, appErrors.ErrValidation.Code, errCode(t, err))
}

func TestWithdrawReleasesSeat(t *testing.T) {
	svc, ledger, courses, _ := newAdmissionFixture()
	enrollment, err := svc.Enroll(context.Background(), EnrollRequest{CourseID: "c1", StudentID: "s1"})
	require.NoError(t, err)

	withdrawn, err := svc.Withdraw(context.Background(), WithdrawRequest{CourseID: "c1", StudentID: "s1"})
	require.NoError(t, err)
	assert.True(t, withdrawn)
	assert.Equal(t, 0, courses.courses["c1"].Enrolled)
	assert.Equal(t, models.EnrollmentStatusWithdrawn, ledger.records[enrollment.ID].Status)
}

func TestWithdrawIsIdempotent(t *testing.T) {
	svc, _, _, _ := newAdmissionFixture()

	withdrawn, err := svc.Withdraw(context.Background(), WithdrawRequest{CourseID: "c1", StudentID: "s1"})
	require.NoError(t, err)
	assert.False(t, withdrawn)

	_, err = svc.Enroll(context.Background(), EnrollRequest{CourseID: "c1", StudentID: "s1"})
	require.NoError(t, err)
	withdrawn, err = svc.Withdraw(context.Background(), WithdrawRequest{CourseID: "c1", StudentID: "s1"})
	require.NoError(t, err)
	assert.True(t, withdrawn)

	withdrawn, err = svc.Withdraw(context.Background(), WithdrawRequest{CourseID: "c1", StudentID: "s1"})
	require.NoError(t, err)
	assert.False(t, withdrawn)
}

func TestWithdrawGradedConflicts(t *testing.T) {
	svc, ledger, courses, _ := newAdmissionFixture()
	enrollment, err := svc.Enroll(context.Background(), EnrollRequest{CourseID: "c1", StudentID: "s1"})
	require.NoError(t, err)
	_, err = svc.UpdateGrade(context.Background(), enrollment.ID, GradeRequest{Grade: 88})
	require.NoError(t, err)

	withdrawn, err := svc.Withdraw(context.Background(), WithdrawRequest{CourseID: "c1", StudentID: "s1"})
	assert.Equal(t, appErrors.ErrConflict.Code, errCode(t, err))
	assert.False(t, withdrawn)
	assert.Equal(t, models.EnrollmentStatusCompleted, ledger.records[enrollment.ID].Status)
	assert.Equal(t, 1, courses.courses["c1"].Enrolled)
}

func TestWithdrawRestoresRecordWhenReleaseFails(t *testing.T) {
	svc, ledger, courses, _ := newAdmissionFixture()
	enrollment, err := svc.Enroll(context.Background(), EnrollRequest{CourseID: "c1", StudentID: "s1"})
	require.NoError(t, err)
	courses.failRelease = true

	_, err = svc.Withdraw(context.Background(), WithdrawRequest{CourseID: "c1", StudentID: "s1"})
	assert.Equal(t, appErrors.ErrInternal.Code, errCode(t, err))
	assert.Equal(t, models.EnrollmentStatusEnrolled, ledger.records[enrollment.ID].Status)
	assert.Equal(t, 1, courses.courses["c1"].Enrolled)
}

func TestUpdateGradeDerivesStatus(t *testing.T) {
	cases := []struct {
		grade  float64
		status models.EnrollmentStatus
	}{
		{100.0, models.EnrollmentStatusCompleted},
		{60.0, models.EnrollmentStatusCompleted},
		{59.9, models.EnrollmentStatusFailed},
		{0.0, models.EnrollmentStatusFailed},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("grade_%.1f", tc.grade), func(t *testing.T) {
			svc, _, courses, _ := newAdmissionFixture()
			enrollment, err := svc.Enroll(context.Background(), EnrollRequest{CourseID: "c1", StudentID: "s1"})
			require.NoError(t, err)

			graded, err := svc.UpdateGrade(context.Background(), enrollment.ID, GradeRequest{Grade: tc.grade})
			require.NoError(t, err)
			assert.Equal(t, tc.status, graded.Status)
			require.NotNil(t, graded.Grade)
			assert.Equal(t, tc.grade, *graded.Grade)
			// Grading keeps the seat.
			assert.Equal(t, 1, courses.courses["c1"].Enrolled)
		})
	}
}

func TestUpdateGradeRejectsOutOfRange(t *testing.T) {
	svc, _, _, _ := newAdmissionFixture()
	enrollment, err := svc.Enroll(context.Background(), EnrollRequest{CourseID: "c1", StudentID: "s1"})
	require.NoError(t, err)

	for _, grade := range []float64{-0.1, 100.1} {
		_, err := svc.UpdateGrade(context.Background(), enrollment.ID, GradeRequest{Grade: grade})
		assert.Equal(t, appErrors.ErrValidation.Code, errCode(t, err))
	}
}

func TestUpdateGradeTerminalStatuses(t *testing.T) {
	svc, _, _, _ := newAdmissionFixture()
	enrollment, err := svc.Enroll(context.Background(), EnrollRequest{CourseID: "c1", StudentID: "s1"})
	require.NoError(t, err)

	_, err = svc.UpdateGrade(context.Background(), enrollment.ID, GradeRequest{Grade: 30})
	require.NoError(t, err)

	// FAILED is terminal.
	_, err = svc.UpdateGrade(context.Background(), enrollment.ID, GradeRequest{Grade: 80})
	assert.Equal(t, appErrors.ErrConflict.Code, errCode(t, err))

	// WITHDRAWN is terminal too.
	withdrawn, err := svc.Enroll(context.Background(), EnrollRequest{CourseID: "c1", StudentID: "s2"})
	require.NoError(t, err)
	_, err = svc.Withdraw(context.Background(), WithdrawRequest{CourseID: "c1", StudentID: "s2"})
	require.NoError(t, err)
	_, err = svc.UpdateGrade(context.Background(), withdrawn.ID, GradeRequest{Grade: 80})
	assert.Equal(t, appErrors.ErrConflict.Code, errCode(t, err))
}

func TestUpdateGradeAllowsRegradeOfCompleted(t *testing.T) {
	svc, _, _, _ := newAdmissionFixture()
	enrollment, err := svc.Enroll(context.Background(), EnrollRequest{CourseID: "c1", StudentID: "s1"})
	require.NoError(t, err)

	graded, err := svc.UpdateGrade(context.Background(), enrollment.ID, GradeRequest{Grade: 75})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusCompleted, graded.Status)

	regraded, err := svc.UpdateGrade(context.Background(), enrollment.ID, GradeRequest{Grade: 40})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusFailed, regraded.Status)
	assert.Equal(t, 40.0, *regraded.Grade)
}

func TestUpdateGradeUnknownEnrollment(t *testing.T) {
	svc, _, _, _ := newAdmissionFixture()
	_, err := svc.UpdateGrade(context.Background(), "ghost", GradeRequest{Grade: 80})
	assert.Equal(t, appErrors.ErrNotFound.Code, errCode(t, err))
}

func TestIsEnrolledFollowsLifecycle(t *testing.T) {
	svc, _, _, _ := newAdmissionFixture()

	enrolled, err := svc.IsEnrolled(context.Background(), "c1", "s1")
	require.NoError(t, err)
	assert.False(t, enrolled)

	_, err = svc.Enroll(context.Background(), EnrollRequest{CourseID: "c1", StudentID: "s1"})
	require.NoError(t, err)
	enrolled, err = svc.IsEnrolled(context.Background(), "c1", "s1")
	require.NoError(t, err)
	assert.True(t, enrolled)

	_, err = svc.Withdraw(context.Background(), WithdrawRequest{CourseID: "c1", StudentID: "s1"})
	require.NoError(t, err)
	enrolled, err = svc.IsEnrolled(context.Background(), "c1", "s1")
	require.NoError(t, err)
	assert.False(t, enrolled)
}

func TestStudentAverageCoversCompletedOnly(t *testing.T) {
	svc, _, courses, _ := newAdmissionFixture()
	courses.courses["c2"] = &models.Course{ID: "c2", Code: "CS102", Capacity: 5}
	courses.courses["c3"] = &models.Course{ID: "c3", Code: "CS103", Capacity: 5}

	e1, err := svc.Enroll(context.Background(), EnrollRequest{CourseID: "c1", StudentID: "s1"})
	require.NoError(t, err)
	e2, err := svc.Enroll(context.Background(), EnrollRequest{CourseID: "c2", StudentID: "s1"})
	require.NoError(t, err)
	_, err = svc.Enroll(context.Background(), EnrollRequest{CourseID: "c3", StudentID: "s1"})
	require.NoError(t, err)

	_, err = svc.UpdateGrade(context.Background(), e1.ID, GradeRequest{Grade: 90})
	require.NoError(t, err)
	_, err = svc.UpdateGrade(context.Background(), e2.ID, GradeRequest{Grade: 40})
	require.NoError(t, err)

	// 40 went FAILED and the third course is ungraded; only 90 counts.
	avg, err := svc.StudentAverageGrade(context.Background(), "s1")
	require.NoError(t, err)
	require.NotNil(t, avg)
	assert.Equal(t, 90.0, *avg)
}

func TestStudentAverageNilWithoutCompletions(t *testing.T) {
	svc, _, _, _ := newAdmissionFixture()
	avg, err := svc.StudentAverageGrade(context.Background(), "s1")
	require.NoError(t, err)
	assert.Nil(t, avg)
}

func TestStudentGradeUsesLatestRecord(t *testing.T) {
	svc, _, _, _ := newAdmissionFixture()

	first, err := svc.Enroll(context.Background(), EnrollRequest{CourseID: "c1", StudentID: "s1"})
	require.NoError(t, err)
	_, err = svc.Withdraw(context.Background(), WithdrawRequest{CourseID: "c1", StudentID: "s1"})
	require.NoError(t, err)
	second, err := svc.Enroll(context.Background(), EnrollRequest{CourseID: "c1", StudentID: "s1"})
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)

	latest, err := svc.StudentGrade(context.Background(), "s1", "c1")
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)
	assert.Equal(t, models.EnrollmentStatusEnrolled, latest.Status)
}

func TestRosterListsActiveEntries(t *testing.T) {
	svc, _, _, _ := newAdmissionFixture()

	_, err := svc.Enroll(context.Background(), EnrollRequest{CourseID: "c1", StudentID: "s1"})
	require.NoError(t, err)
	_, err = svc.Enroll(context.Background(), EnrollRequest{CourseID: "c1", StudentID: "s2"})
	require.NoError(t, err)
	_, err = svc.Withdraw(context.Background(), WithdrawRequest{CourseID: "c1", StudentID: "s1"})
	require.NoError(t, err)

	roster, err := svc.Roster(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "CS101", roster.Course.Code)
	require.Len(t, roster.Entries, 1)
	assert.Equal(t, "s2", roster.Entries[0].Student.ID)

	names := make([]string, 0, len(roster.Entries))
	for _, entry := range roster.Entries {
		names = append(names, entry.Student.FullName)
	}
	sort.Strings(names)
	assert.Equal(t, []string{"Bob"}, names)
}
