package service

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/instrolab/lims-portal-api/internal/models"
	"github.com/instrolab/lims-portal-api/pkg/config"
	"github.com/instrolab/lims-portal-api/pkg/jobs"
)

type auditLogStore interface {
	Insert(ctx context.Context, entry *models.AuditLog) error
}

// AuditService persists audit entries off the request path through a worker
// queue. An audit outage degrades to warnings; it never fails user actions.
type AuditService struct {
	repo   auditLogStore
	queue  *jobs.Queue
	logger *zap.Logger
}

// NewAuditService constructs the audit service and its queue. Call Start
// before recording entries.
func NewAuditService(repo auditLogStore, cfg config.AuditConfig, logger *zap.Logger) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &AuditService{repo: repo, logger: logger}
	s.queue = jobs.NewQueue("audit", s.handle, jobs.QueueConfig{
		Workers:    cfg.WorkerConcurrency,
		BufferSize: cfg.QueueSize,
		MaxRetries: cfg.WorkerRetries,
		Logger:     logger,
	})
	return s
}

// Start launches the queue workers.
func (s *AuditService) Start(ctx context.Context) {
	if s == nil {
		return
	}
	s.queue.Start(ctx)
}

// Stop drains the workers.
func (s *AuditService) Stop() {
	if s == nil {
		return
	}
	s.queue.Stop()
}

// Record enqueues an audit entry. Enqueue failures are logged and dropped.
func (s *AuditService) Record(entry models.AuditLog) {
	if s == nil || s.queue == nil {
		return
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if err := s.queue.Enqueue(jobs.Job{ID: entry.ID, Type: "audit_log", Payload: entry}); err != nil {
		s.logger.Warn("failed to enqueue audit entry",
			zap.String("action", entry.Action),
			zap.String("resource", entry.Resource),
			zap.Error(err),
		)
	}
}

// StaffAction builds and records an entry for an authenticated staff actor.
// Detail values that fail to marshal are stored without detail.
func (s *AuditService) StaffAction(actor models.StaffActor, action, resource, resourceID string, detail any) {
	if s == nil {
		return
	}
	entry := models.AuditLog{
		Action:    action,
		Resource:  resource,
		IPAddress: actor.IP,
		UserAgent: actor.UserAgent,
	}
	if actor.UserID != "" {
		id := actor.UserID
		entry.ActorID = &id
	}
	if resourceID != "" {
		rid := resourceID
		entry.ResourceID = &rid
	}
	if detail != nil {
		data, err := json.Marshal(detail)
		if err != nil {
			s.logger.Warn("failed to marshal audit detail", zap.String("action", action), zap.Error(err))
		} else {
			entry.Detail = data
		}
	}
	s.Record(entry)
}

// CustomerAction builds and records an entry for an action performed
// through a review link. Customers carry no staff identity; the actor is
// the customer id the link was issued for.
func (s *AuditService) CustomerAction(customerID, action, resource, resourceID string, detail any) {
	if s == nil {
		return
	}
	entry := models.AuditLog{
		Action:   action,
		Resource: resource,
	}
	if customerID != "" {
		id := customerID
		entry.ActorID = &id
	}
	if resourceID != "" {
		rid := resourceID
		entry.ResourceID = &rid
	}
	if detail != nil {
		data, err := json.Marshal(detail)
		if err != nil {
			s.logger.Warn("failed to marshal audit detail", zap.String("action", action), zap.Error(err))
		} else {
			entry.Detail = data
		}
	}
	s.Record(entry)
}

func (s *AuditService) handle(ctx context.Context, job jobs.Job) error {
	entry, ok := job.Payload.(models.AuditLog)
	if !ok {
		s.logger.Warn("unexpected audit job payload", zap.String("job_id", job.ID))
		return nil
	}
	return s.repo.Insert(ctx, &entry)
}
