package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/zjgsu-ms/campus-course-api/internal/models"
	appErrors "github.com/zjgsu-ms/campus-course-api/pkg/errors"
)

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	FindByID(ctx context.Context, id string) (*models.Student, error)
	FindByNumber(ctx context.Context, studentNo string) (*models.Student, error)
	FindByEmail(ctx context.Context, email string) (*models.Student, error)
	Create(ctx context.Context, student *models.Student) error
	Update(ctx context.Context, student *models.Student) error
	Delete(ctx context.Context, id string) error
}

type enrollmentGuard interface {
	HasActiveOrCompletedByStudent(ctx context.Context, studentID string) (bool, error)
}

// CreateStudentRequest holds payload for registering students.
type CreateStudentRequest struct {
	StudentNo string `json:"student_no" validate:"required"`
	FullName  string `json:"full_name" validate:"required"`
	Major     string `json:"major" validate:"required"`
	GradeYear int    `json:"grade_year" validate:"required,min=1,max=4"`
	Email     string `json:"email" validate:"required,email"`
}

// UpdateStudentRequest holds payload for updating students.
type UpdateStudentRequest struct {
	StudentNo string `json:"student_no" validate:"required"`
	FullName  string `json:"full_name" validate:"required"`
	Major     string `json:"major" validate:"required"`
	GradeYear int    `json:"grade_year" validate:"required,min=1,max=4"`
	Email     string `json:"email" validate:"required,email"`
}

// StudentService handles student directory use-cases.
type StudentService struct {
	repo        studentRepository
	enrollments enrollmentGuard
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewStudentService constructs the student service.
func NewStudentService(repo studentRepository, enrollments enrollmentGuard, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{repo: repo, enrollments: enrollments, validator: validate, logger: logger}
}

// List returns students and pagination metadata.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, *models.Pagination, error) {
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return students, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a single student.
func (s *StudentService) Get(ctx context.Context, id string) (*models.Student, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// GetByNumber returns the student registered under the student number.
func (s *StudentService) GetByNumber(ctx context.Context, studentNo string) (*models.Student, error) {
	student, err := s.repo.FindByNumber(ctx, studentNo)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// Create registers a new student.
func (s *StudentService) Create(ctx context.Context, req CreateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	if err := s.checkUnique(ctx, req.StudentNo, req.Email, ""); err != nil {
		return nil, err
	}

	student := &models.Student{
		StudentNo: req.StudentNo,
		FullName:  req.FullName,
		Major:     req.Major,
		GradeYear: req.GradeYear,
		Email:     req.Email,
	}
	if err := s.repo.Create(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}
	return student, nil
}

// Update modifies mutable student fields.
func (s *StudentService) Update(ctx context.Context, id string, req UpdateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	if err := s.checkUnique(ctx, req.StudentNo, req.Email, id); err != nil {
		return nil, err
	}

	student := &models.Student{
		ID:        id,
		StudentNo: req.StudentNo,
		FullName:  req.FullName,
		Major:     req.Major,
		GradeYear: req.GradeYear,
		Email:     req.Email,
	}
	if err := s.repo.Update(ctx, student); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student")
	}
	return student, nil
}

// Delete removes a student with no enrollment history that must be kept.
func (s *StudentService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if s.enrollments != nil {
		blocked, err := s.enrollments.HasActiveOrCompletedByStudent(ctx, id)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollments")
		}
		if blocked {
			return appErrors.Clone(appErrors.ErrConflict, "student has active or completed enrollments")
		}
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete student")
	}
	return nil
}

func (s *StudentService) checkUnique(ctx context.Context, studentNo, email, excludeID string) error {
	if other, err := s.repo.FindByNumber(ctx, studentNo); err == nil {
		if other.ID != excludeID {
			return appErrors.Clone(appErrors.ErrConflict, "student number already used")
		}
	} else if !errors.Is(err, sql.ErrNoRows) {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate student number")
	}
	if other, err := s.repo.FindByEmail(ctx, email); err == nil {
		if other.ID != excludeID {
			return appErrors.Clone(appErrors.ErrConflict, "email already used")
		}
	} else if !errors.Is(err, sql.ErrNoRows) {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate email")
	}
	return nil
}
