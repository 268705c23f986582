package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/zjgsu-ms/campus-course-api/internal/models"
	"github.com/zjgsu-ms/campus-course-api/pkg/config"
	"github.com/zjgsu-ms/campus-course-api/pkg/jobs"
)

type eventSink interface {
	Create(ctx context.Context, event *models.EnrollmentEvent) error
	ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.EnrollmentEvent, error)
}

const auditJobType = "enrollment_event"

// AuditService persists the enrollment audit trail asynchronously through a
// worker queue. Recording is best-effort: a full buffer drops the event and
// never fails the admission operation that produced it.
type AuditService struct {
	sink    eventSink
	queue   *jobs.Queue
	logger  *zap.Logger
	enabled bool
}

// NewAuditService constructs the audit service. A disabled config or nil
// sink yields a no-op recorder.
func NewAuditService(sink eventSink, cfg config.AuditConfig, logger *zap.Logger) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &AuditService{sink: sink, logger: logger}
	if !cfg.Enabled || sink == nil {
		return s
	}
	s.enabled = true
	s.queue = jobs.NewQueue("enrollment-audit", s.handle, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		Logger:     logger,
	})
	return s
}

// Start launches the audit workers.
func (s *AuditService) Start(ctx context.Context) {
	if s != nil && s.queue != nil {
		s.queue.Start(ctx)
	}
}

// Stop drains the audit workers.
func (s *AuditService) Stop() {
	if s != nil && s.queue != nil {
		s.queue.Stop()
	}
}

// Record enqueues an audit event without blocking.
func (s *AuditService) Record(event models.EnrollmentEvent) {
	if s == nil || !s.enabled {
		return
	}
	ok := s.queue.TryEnqueue(jobs.Job{
		ID:      event.EnrollmentID,
		Type:    auditJobType,
		Payload: event,
	})
	if !ok {
		s.logger.Sugar().Warnw("audit event dropped",
			"enrollment_id", event.EnrollmentID, "event_type", event.Type)
	}
}

// Trail returns the persisted audit trail of an enrollment.
func (s *AuditService) Trail(ctx context.Context, enrollmentID string) ([]models.EnrollmentEvent, error) {
	if s == nil || s.sink == nil {
		return nil, nil
	}
	return s.sink.ListByEnrollment(ctx, enrollmentID)
}

func (s *AuditService) handle(ctx context.Context, job jobs.Job) error {
	event, ok := job.Payload.(models.EnrollmentEvent)
	if !ok {
		return fmt.Errorf("unexpected audit payload %T", job.Payload)
	}
	return s.sink.Create(ctx, &event)
}
