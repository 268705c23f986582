package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/zjgsu-ms/campus-course-api/internal/models"
	appErrors "github.com/zjgsu-ms/campus-course-api/pkg/errors"
)

type courseRepository interface {
	List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error)
	FindByID(ctx context.Context, id string) (*models.Course, error)
	FindByCode(ctx context.Context, code string) (*models.Course, error)
	Create(ctx context.Context, course *models.Course) error
	Update(ctx context.Context, course *models.Course) error
	Delete(ctx context.Context, id string) error
}

type instructorReader interface {
	FindByID(ctx context.Context, id string) (*models.Instructor, error)
}

type scheduleReader interface {
	FindByID(ctx context.Context, id string) (*models.ScheduleSlot, error)
}

type courseCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

func courseCacheKey(id string) string {
	return "course:" + id
}

func courseCachePattern(id string) string {
	return "course:" + id + "*"
}

// CreateCourseRequest holds payload for creating courses.
type CreateCourseRequest struct {
	Code         string `json:"code" validate:"required"`
	Title        string `json:"title" validate:"required"`
	InstructorID string `json:"instructor_id" validate:"required"`
	ScheduleID   string `json:"schedule_id" validate:"required"`
	Capacity     int    `json:"capacity" validate:"required,min=1"`
}

// UpdateCourseRequest holds payload for updating courses.
type UpdateCourseRequest struct {
	Code         string `json:"code" validate:"required"`
	Title        string `json:"title" validate:"required"`
	InstructorID string `json:"instructor_id" validate:"required"`
	ScheduleID   string `json:"schedule_id" validate:"required"`
	Capacity     int    `json:"capacity" validate:"required,min=1"`
}

// CourseService handles course directory use-cases.
type CourseService struct {
	repo        courseRepository
	instructors instructorReader
	schedules   scheduleReader
	cache       courseCache
	metrics     *MetricsService
	maxCapacity int
	cacheTTL    time.Duration
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewCourseService constructs the course service. Cache and metrics are
// optional.
func NewCourseService(
	repo courseRepository,
	instructors instructorReader,
	schedules scheduleReader,
	cache courseCache,
	metrics *MetricsService,
	maxCapacity int,
	cacheTTL time.Duration,
	validate *validator.Validate,
	logger *zap.Logger,
) *CourseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxCapacity <= 0 {
		maxCapacity = 500
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &CourseService{
		repo:        repo,
		instructors: instructors,
		schedules:   schedules,
		cache:       cache,
		metrics:     metrics,
		maxCapacity: maxCapacity,
		cacheTTL:    cacheTTL,
		validator:   validate,
		logger:      logger,
	}
}

// List returns courses and pagination metadata.
func (s *CourseService) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, *models.Pagination, error) {
	courses, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return courses, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a course, reading through the cache when available.
func (s *CourseService) Get(ctx context.Context, id string) (*models.Course, error) {
	if s.cache != nil {
		var cached models.Course
		if err := s.cache.Get(ctx, courseCacheKey(id), &cached); err == nil {
			s.metrics.RecordCacheOperation(true)
			return &cached, nil
		}
		s.metrics.RecordCacheOperation(false)
	}

	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, courseCacheKey(id), course, s.cacheTTL); err != nil {
			s.logger.Sugar().Warnw("failed to cache course", "course_id", id, "error", err)
		}
	}
	return course, nil
}

// Create registers a new course with zero occupancy.
func (s *CourseService) Create(ctx context.Context, req CreateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	if req.Capacity > s.maxCapacity {
		return nil, appErrors.Clone(appErrors.ErrValidation, "capacity exceeds the allowed maximum")
	}
	if err := s.checkReferences(ctx, req.InstructorID, req.ScheduleID); err != nil {
		return nil, err
	}
	if _, err := s.repo.FindByCode(ctx, req.Code); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "course code already used")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate course code")
	}

	course := &models.Course{
		Code:         req.Code,
		Title:        req.Title,
		InstructorID: req.InstructorID,
		ScheduleID:   req.ScheduleID,
		Capacity:     req.Capacity,
	}
	if err := s.repo.Create(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course")
	}
	return course, nil
}

// Update modifies mutable course fields. The capacity may not drop below
// the current occupancy.
func (s *CourseService) Update(ctx context.Context, id string, req UpdateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	if req.Capacity > s.maxCapacity {
		return nil, appErrors.Clone(appErrors.ErrValidation, "capacity exceeds the allowed maximum")
	}

	current, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if req.Capacity < current.Enrolled {
		return nil, appErrors.Clone(appErrors.ErrConflict, "capacity cannot drop below current occupancy")
	}
	if err := s.checkReferences(ctx, req.InstructorID, req.ScheduleID); err != nil {
		return nil, err
	}
	if other, err := s.repo.FindByCode(ctx, req.Code); err == nil {
		if other.ID != id {
			return nil, appErrors.Clone(appErrors.ErrConflict, "course code already used")
		}
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate course code")
	}

	course := &models.Course{
		ID:           id,
		Code:         req.Code,
		Title:        req.Title,
		InstructorID: req.InstructorID,
		ScheduleID:   req.ScheduleID,
		Capacity:     req.Capacity,
	}
	if err := s.repo.Update(ctx, course); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update course")
	}
	s.invalidate(ctx, id)
	return s.Get(ctx, id)
}

// Delete removes a course with no seats held.
func (s *CourseService) Delete(ctx context.Context, id string) error {
	current, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if current.Enrolled > 0 {
		return appErrors.Clone(appErrors.ErrConflict, "course still has enrolled students")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete course")
	}
	s.invalidate(ctx, id)
	return nil
}

func (s *CourseService) checkReferences(ctx context.Context, instructorID, scheduleID string) error {
	if _, err := s.instructors.FindByID(ctx, instructorID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "instructor not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load instructor")
	}
	if _, err := s.schedules.FindByID(ctx, scheduleID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "schedule slot not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule slot")
	}
	return nil
}

func (s *CourseService) invalidate(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, courseCachePattern(id)); err != nil {
		s.logger.Sugar().Warnw("failed to invalidate course cache", "course_id", id, "error", err)
	}
}
