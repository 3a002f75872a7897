/**
 * @description
 * This file contains the action gateways: the user actions that cost credits.
 * Each action debits the ledger before persisting anything, then dispatches a
 * code-generation job. A failed debit persists nothing; a failure after the debit
 * is not compensated.
 */
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	petname "github.com/dustinkirkland/golang-petname"

	"github.com/buildbuddy/credits-service/internal/domain"
	"github.com/buildbuddy/credits-service/internal/store"
)

// ProjectStore defines the project and message persistence the gateways need.
type ProjectStore interface {
	CreateProject(ctx context.Context, project *domain.Project, first *domain.Message) (*domain.Project, error)
	CreateMessage(ctx context.Context, message *domain.Message) (*domain.Message, error)
	GetProject(ctx context.Context, projectID string) (*domain.Project, error)
	ListProjects(ctx context.Context, userID string) ([]domain.Project, error)
	ListMessages(ctx context.Context, projectID string) ([]domain.Message, error)
}

// CreditConsumer debits credits for an action.
type CreditConsumer interface {
	ConsumeCreditsFor(ctx context.Context, userID string, action string, cost int) (*domain.UsageRecord, error)
}

// EventPublisher sends a JSON event to a message broker exchange.
type EventPublisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body interface{}) error
}

// ActionRateLimiter counts hits per subject within a time window.
type ActionRateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope string, subject string, limit int, window time.Duration) (int, int, error)
}

// JobRoute is where code-generation jobs are published.
type JobRoute struct {
	Exchange   string
	RoutingKey string
}

// ProjectService implements project creation and message sending.
type ProjectService struct {
	projects  ProjectStore
	credits   CreditConsumer
	publisher EventPublisher
	route     JobRoute
	logger    *slog.Logger

	rateLimiter   ActionRateLimiter
	ratePerMinute int
	generateName  func() string
}

// NewProjectService creates a new project service.
func NewProjectService(projects ProjectStore, credits CreditConsumer, publisher EventPublisher, route JobRoute, logger *slog.Logger) *ProjectService {
	return &ProjectService{
		projects:     projects,
		credits:      credits,
		publisher:    publisher,
		route:        route,
		logger:       logger,
		generateName: func() string { return petname.Generate(2, "-") },
	}
}

// SetRateLimiter enables per-user limiting of credit-debiting actions.
func (s *ProjectService) SetRateLimiter(limiter ActionRateLimiter, perMinute int) {
	s.rateLimiter = limiter
	s.ratePerMinute = perMinute
}

// SetNameGenerator overrides how project names are generated.
func (s *ProjectService) SetNameGenerator(generate func() string) {
	if generate != nil {
		s.generateName = generate
	}
}

// CreateProject debits the project creation cost, persists the project with the prompt as
// its first message and dispatches the generation job.
func (s *ProjectService) CreateProject(ctx context.Context, userID string, value string) (*domain.Project, error) {
	if userID == "" {
		return nil, domain.ErrUnauthorized
	}
	if err := validatePrompt(value); err != nil {
		return nil, err
	}
	if err := s.checkRateLimit(ctx, ActionCreateProject, userID); err != nil {
		return nil, err
	}

	if _, err := s.credits.ConsumeCreditsFor(ctx, userID, ActionCreateProject, domain.CreditCostCreateProject); err != nil {
		return nil, err
	}

	project, err := s.projects.CreateProject(ctx,
		&domain.Project{Name: s.generateName(), UserID: userID},
		&domain.Message{Content: value, Role: domain.RoleUser, Type: domain.MessageResult},
	)
	if err != nil {
		s.logger.Error("project persist failed after debit", "user_id", userID, "credits", domain.CreditCostCreateProject, "error", err)
		return nil, fmt.Errorf("create project: %w", err)
	}

	if err := s.dispatch(ctx, value, project.ID); err != nil {
		return nil, err
	}

	s.logger.Info("project created", "user_id", userID, "project_id", project.ID, "name", project.Name)
	return project, nil
}

// CreateMessage debits the message cost, persists the message and dispatches the job.
// The project must belong to the caller; this is checked before the debit.
func (s *ProjectService) CreateMessage(ctx context.Context, userID string, projectID string, value string) (*domain.Message, error) {
	if userID == "" {
		return nil, domain.ErrUnauthorized
	}
	if strings.TrimSpace(projectID) == "" {
		return nil, &domain.ValidationError{Field: "projectId", Message: "Project ID is required"}
	}
	if err := validatePrompt(value); err != nil {
		return nil, err
	}

	if _, err := s.GetProject(ctx, userID, projectID); err != nil {
		return nil, err
	}
	if err := s.checkRateLimit(ctx, ActionSendMessage, userID); err != nil {
		return nil, err
	}

	if _, err := s.credits.ConsumeCreditsFor(ctx, userID, ActionSendMessage, domain.CreditCostSendMessage); err != nil {
		return nil, err
	}

	message, err := s.projects.CreateMessage(ctx, &domain.Message{
		ProjectID: projectID,
		Content:   value,
		Role:      domain.RoleUser,
		Type:      domain.MessageResult,
	})
	if err != nil {
		s.logger.Error("message persist failed after debit", "user_id", userID, "project_id", projectID, "credits", domain.CreditCostSendMessage, "error", err)
		return nil, fmt.Errorf("create message: %w", err)
	}

	if err := s.dispatch(ctx, value, projectID); err != nil {
		return nil, err
	}
	return message, nil
}

// GetProject returns a project owned by userID. Projects of other users are reported as
// not found.
func (s *ProjectService) GetProject(ctx context.Context, userID string, projectID string) (*domain.Project, error) {
	if userID == "" {
		return nil, domain.ErrUnauthorized
	}

	project, err := s.projects.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if project.UserID != userID {
		return nil, store.ErrProjectNotFound
	}
	return project, nil
}

// ListProjects returns the caller's projects.
func (s *ProjectService) ListProjects(ctx context.Context, userID string) ([]domain.Project, error) {
	if userID == "" {
		return nil, domain.ErrUnauthorized
	}
	return s.projects.ListProjects(ctx, userID)
}

// ListMessages returns the messages of one of the caller's projects.
func (s *ProjectService) ListMessages(ctx context.Context, userID string, projectID string) ([]domain.Message, error) {
	if _, err := s.GetProject(ctx, userID, projectID); err != nil {
		return nil, err
	}
	return s.projects.ListMessages(ctx, projectID)
}

func (s *ProjectService) dispatch(ctx context.Context, value string, projectID string) error {
	event := domain.AgentRunEvent{Value: value, ProjectID: projectID}
	if err := s.publisher.Publish(ctx, s.route.Exchange, s.route.RoutingKey, event); err != nil {
		s.logger.Error("failed to dispatch code agent job", "project_id", projectID, "error", err)
		return fmt.Errorf("dispatch code agent job: %w", err)
	}
	return nil
}

func (s *ProjectService) checkRateLimit(ctx context.Context, action string, userID string) error {
	if s.rateLimiter == nil || s.ratePerMinute <= 0 {
		return nil
	}

	count, retryAfter, err := s.rateLimiter.ConsumeRateLimit(ctx, action, userID, s.ratePerMinute, time.Minute)
	if err != nil {
		// Fail open when Redis is unavailable.
		s.logger.Warn("rate limiter unavailable", "action", action, "user_id", userID, "error", err)
		return nil
	}
	if count > s.ratePerMinute {
		return &domain.RateLimitError{RetryAfterSeconds: retryAfter}
	}
	return nil
}

func validatePrompt(value string) error {
	switch {
	case strings.TrimSpace(value) == "":
		return &domain.ValidationError{Field: "value", Message: "Value is required"}
	case len([]rune(value)) > domain.MaxPromptLength:
		return &domain.ValidationError{Field: "value", Message: "Value is too long"}
	}
	return nil
}
