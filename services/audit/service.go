package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/projetosfelipeeduardo/whatszap-bot-sub001/models"
	"github.com/projetosfelipeeduardo/whatszap-bot-sub001/repositories"
	"go.uber.org/zap"
)

// AuditService writes auth events through a pool of background workers
type AuditService struct {
	eventRepo   repositories.AuthEventRepository
	logger      *zap.Logger
	eventChan   chan *models.AuthEvent
	workerCount int
	bufferSize  int
	wg          sync.WaitGroup
	started     bool
	stopped     bool
	mu          sync.RWMutex
}

// Config holds configuration for the AuditService
type Config struct {
	BufferSize  int // Size of the event buffer channel
	WorkerCount int // Number of concurrent workers
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		BufferSize:  1000,
		WorkerCount: 2,
	}
}

// RequestMeta identifies the HTTP request an event came from
type RequestMeta struct {
	RequestID string
	IPAddress string
	UserAgent string
}

// NewAuditService creates a new AuditService instance
func NewAuditService(eventRepo repositories.AuthEventRepository, logger *zap.Logger, config Config) *AuditService {
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultConfig().BufferSize
	}
	if config.WorkerCount <= 0 {
		config.WorkerCount = DefaultConfig().WorkerCount
	}

	return &AuditService{
		eventRepo:   eventRepo,
		logger:      logger,
		eventChan:   make(chan *models.AuthEvent, config.BufferSize),
		workerCount: config.WorkerCount,
		bufferSize:  config.BufferSize,
	}
}

// Start starts the background workers
func (s *AuditService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("audit service already started")
	}

	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.started = true
	s.logger.Info("started audit service",
		zap.Int("worker_count", s.workerCount),
		zap.Int("buffer_size", s.bufferSize))

	return nil
}

// Stop stops accepting events and waits for queued ones to be written
func (s *AuditService) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return fmt.Errorf("audit service not running")
	}
	s.stopped = true
	close(s.eventChan)
	s.mu.Unlock()

	s.logger.Info("stopping audit service", zap.Int("pending_events", len(s.eventChan)))

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("audit service stopped gracefully")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("audit service stop timeout after %v", timeout)
	}
}

// LogEvent queues an event without blocking. The event is dropped when the buffer is full.
func (s *AuditService) LogEvent(event *models.AuthEvent) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started || s.stopped {
		return fmt.Errorf("audit service not running")
	}

	select {
	case s.eventChan <- event:
		return nil
	default:
		s.logger.Warn("audit event channel full, dropping event",
			zap.String("action", string(event.Action)))
		return fmt.Errorf("audit event buffer full")
	}
}

func (s *AuditService) worker(id int) {
	defer s.wg.Done()

	s.logger.Debug("audit worker started", zap.Int("worker_id", id))

	for event := range s.eventChan {
		if err := s.processEvent(event); err != nil {
			s.logger.Error("failed to process audit event",
				zap.Int("worker_id", id),
				zap.Error(err),
				zap.String("action", string(event.Action)))
		}
	}

	s.logger.Debug("audit worker stopped", zap.Int("worker_id", id))
}

func (s *AuditService) processEvent(event *models.AuthEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.eventRepo.Insert(ctx, event); err != nil {
		return fmt.Errorf("failed to insert auth event: %w", err)
	}

	return nil
}

// GetStats returns statistics about the audit service
func (s *AuditService) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Stats{
		BufferSize:    s.bufferSize,
		PendingEvents: len(s.eventChan),
		WorkerCount:   s.workerCount,
		Started:       s.started && !s.stopped,
	}
}

// Stats represents audit service statistics
type Stats struct {
	BufferSize    int
	PendingEvents int
	WorkerCount   int
	Started       bool
}

// Convenience methods for logging session events

// LogLogin records a successful login
func (s *AuditService) LogLogin(user *models.User, meta RequestMeta) error {
	event := models.NewAuthEvent(models.AuthActionLoginSucceeded).
		WithUser(user.ID).
		WithEmail(user.Email).
		WithRequest(meta.RequestID, meta.IPAddress, meta.UserAgent)
	return s.LogEvent(event)
}

// LogLoginFailed records a rejected login attempt
func (s *AuditService) LogLoginFailed(email, reason string, meta RequestMeta) error {
	event := models.NewAuthEvent(models.AuthActionLoginFailed).
		WithEmail(models.NormalizeEmail(email)).
		WithDetails(map[string]string{"reason": reason}).
		WithRequest(meta.RequestID, meta.IPAddress, meta.UserAgent)
	return s.LogEvent(event)
}

// LogRegistration records a new account
func (s *AuditService) LogRegistration(user *models.User, meta RequestMeta) error {
	event := models.NewAuthEvent(models.AuthActionRegistered).
		WithUser(user.ID).
		WithEmail(user.Email).
		WithDetails(map[string]interface{}{"plan_type": user.PlanType}).
		WithRequest(meta.RequestID, meta.IPAddress, meta.UserAgent)
	return s.LogEvent(event)
}

// LogLogout records a logout. principal is nil when the credential no longer resolved.
func (s *AuditService) LogLogout(principal *models.Principal, meta RequestMeta) error {
	event := models.NewAuthEvent(models.AuthActionLogout).
		WithRequest(meta.RequestID, meta.IPAddress, meta.UserAgent)
	if principal != nil {
		event.WithUser(principal.ID).WithEmail(principal.Email)
	}
	return s.LogEvent(event)
}

// LogInvalidationFailure records a credential the backend failed to invalidate
func (s *AuditService) LogInvalidationFailure(backend string, cause error, meta RequestMeta) error {
	event := models.NewAuthEvent(models.AuthActionInvalidationFailed).
		WithDetails(map[string]string{
			"backend": backend,
			"error":   cause.Error(),
		}).
		WithRequest(meta.RequestID, meta.IPAddress, meta.UserAgent)
	return s.LogEvent(event)
}

// LogSubscriptionChanged records a plan change applied from a billing event
func (s *AuditService) LogSubscriptionChanged(userID uuid.UUID, eventType string, plan models.PlanType, status models.PlanStatus) error {
	event := models.NewAuthEvent(models.AuthActionSubscriptionChanged).
		WithUser(userID).
		WithDetails(map[string]interface{}{
			"event":       eventType,
			"plan_type":   plan,
			"plan_status": status,
		})
	return s.LogEvent(event)
}
