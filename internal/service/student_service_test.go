package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zjgsu-ms/campus-course-api/internal/models"
	appErrors "github.com/zjgsu-ms/campus-course-api/pkg/errors"
)

type mockStudentRepo struct {
	students map[string]*models.Student
	seq      int
	deleted  []string
}

func newMockStudentRepo() *mockStudentRepo {
	return &mockStudentRepo{students: make(map[string]*models.Student)}
}

func (m *mockStudentRepo) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	var out []models.Student
	for _, student := range m.students {
		out = append(out, *student)
	}
	return out, len(out), nil
}

func (m *mockStudentRepo) FindByID(ctx context.Context, id string) (*models.Student, error) {
	if student, ok := m.students[id]; ok {
		out := *student
		return &out, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockStudentRepo) FindByNumber(ctx context.Context, studentNo string) (*models.Student, error) {
	for _, student := range m.students {
		if student.StudentNo == studentNo {
			out := *student
			return &out, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockStudentRepo) FindByEmail(ctx context.Context, email string) (*models.Student, error) {
	for _, student := range m.students {
		if student.Email == email {
			out := *student
			return &out, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockStudentRepo) Create(ctx context.Context, student *models.Student) error {
	m.seq++
	if student.ID == "" {
		student.ID = "stu-" + string(rune('0'+m.seq))
	}
	stored := *student
	m.students[stored.ID] = &stored
	return nil
}

func (m *mockStudentRepo) Update(ctx context.Context, student *models.Student) error {
	if _, ok := m.students[student.ID]; !ok {
		return sql.ErrNoRows
	}
	stored := *student
	m.students[stored.ID] = &stored
	return nil
}

func (m *mockStudentRepo) Delete(ctx context.Context, id string) error {
	if _, ok := m.students[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.students, id)
	m.deleted = append(m.deleted, id)
	return nil
}

type mockEnrollmentGuard struct {
	blocked map[string]bool
}

func (m *mockEnrollmentGuard) HasActiveOrCompletedByStudent(ctx context.Context, studentID string) (bool, error) {
	return m.blocked[studentID], nil
}

func newStudentFixture() (*StudentService, *mockStudentRepo, *mockEnrollmentGuard) {
	repo := newMockStudentRepo()
	guard := &mockEnrollmentGuard{blocked: map[string]bool{}}
	svc := NewStudentService(repo, guard, validator.New(), zap.NewNop())
	return svc, repo, guard
}

func validStudentRequest() CreateStudentRequest {
	return CreateStudentRequest{
		StudentNo: "2023001",
		FullName:  "Alice",
		Major:     "CS",
		GradeYear: 2,
		Email:     "alice@campus.edu",
	}
}

func TestStudentServiceCreate(t *testing.T) {
	svc, repo, _ := newStudentFixture()

	student, err := svc.Create(context.Background(), validStudentRequest())
	require.NoError(t, err)
	assert.NotEmpty(t, student.ID)
	assert.Len(t, repo.students, 1)
}

func TestStudentServiceCreateRejectsDuplicates(t *testing.T) {
	svc, _, _ := newStudentFixture()
	_, err := svc.Create(context.Background(), validStudentRequest())
	require.NoError(t, err)

	dup := validStudentRequest()
	dup.Email = "other@campus.edu"
	_, err = svc.Create(context.Background(), dup)
	assert.Equal(t, appErrors.ErrConflict.Code, errCode(t, err))

	dup = validStudentRequest()
	dup.StudentNo = "2023099"
	_, err = svc.Create(context.Background(), dup)
	assert.Equal(t, appErrors.ErrConflict.Code, errCode(t, err))
}

func TestStudentServiceCreateValidatesGradeYear(t *testing.T) {
	svc, _, _ := newStudentFixture()

	for _, year := range []int{0, 5} {
		req := validStudentRequest()
		req.GradeYear = year
		_, err := svc.Create(context.Background(), req)
		assert.Equal(t, appErrors.ErrValidation.Code, errCode(t, err))
	}
}

func TestStudentServiceUpdate(t *testing.T) {
	svc, _, _ := newStudentFixture()
	student, err := svc.Create(context.Background(), validStudentRequest())
	require.NoError(t, err)

	updated, err := svc.Update(context.Background(), student.ID, UpdateStudentRequest{
		StudentNo: "2023001",
		FullName:  "Alice Zhang",
		Major:     "SE",
		GradeYear: 3,
		Email:     "alice@campus.edu",
	})
	require.NoError(t, err)
	assert.Equal(t, "Alice Zhang", updated.FullName)
	assert.Equal(t, 3, updated.GradeYear)
}

func TestStudentServiceDeleteGuardedByEnrollments(t *testing.T) {
	svc, repo, guard := newStudentFixture()
	student, err := svc.Create(context.Background(), validStudentRequest())
	require.NoError(t, err)

	guard.blocked[student.ID] = true
	err = svc.Delete(context.Background(), student.ID)
	assert.Equal(t, appErrors.ErrConflict.Code, errCode(t, err))

	guard.blocked[student.ID] = false
	require.NoError(t, svc.Delete(context.Background(), student.ID))
	assert.Contains(t, repo.deleted, student.ID)
}

func TestStudentServiceGetNotFound(t *testing.T) {
	svc, _, _ := newStudentFixture()
	_, err := svc.Get(context.Background(), "ghost")
	assert.Equal(t, appErrors.ErrNotFound.Code, errCode(t, err))
}
