/**
 * @description
 * This file contains the HTTP handler functions for the credit ledger and
 * subscription endpoints. Handlers parse the request, call the service layer and
 * map service errors onto HTTP statuses in one place (writeServiceError).
 */
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/buildbuddy/credits-service/internal/app"
	"github.com/buildbuddy/credits-service/internal/domain"
	"github.com/buildbuddy/credits-service/internal/store"
)

// UsageAPI exposes the caller's usage projection.
type UsageAPI interface {
	GetUserUsageStats(ctx context.Context, userID string) (*domain.UsageStats, error)
}

// SubscriptionAPI exposes the user-initiated subscription operations.
type SubscriptionAPI interface {
	SyncCredits(ctx context.Context, userID string) (*app.CreditSync, error)
	UpdateSubscription(ctx context.Context, userID string, plan string) (domain.PlanTier, error)
}

// ProjectAPI exposes the credit-debiting actions and their reads.
type ProjectAPI interface {
	CreateProject(ctx context.Context, userID string, value string) (*domain.Project, error)
	CreateMessage(ctx context.Context, userID string, projectID string, value string) (*domain.Message, error)
	GetProject(ctx context.Context, userID string, projectID string) (*domain.Project, error)
	ListProjects(ctx context.Context, userID string) ([]domain.Project, error)
	ListMessages(ctx context.Context, userID string, projectID string) ([]domain.Message, error)
}

// Handler holds the application services that handlers interact with.
type Handler struct {
	usage         UsageAPI
	subscriptions SubscriptionAPI
	projects      ProjectAPI
	validate      *validator.Validate
	logger        *slog.Logger
}

// NewHandler creates a new Handler with the given services.
func NewHandler(usage UsageAPI, subscriptions SubscriptionAPI, projects ProjectAPI, logger *slog.Logger) *Handler {
	return &Handler{
		usage:         usage,
		subscriptions: subscriptions,
		projects:      projects,
		validate:      validator.New(),
		logger:        logger,
	}
}

type updateSubscriptionRequest struct {
	Plan string `json:"plan" validate:"required,oneof=free pro"`
}

type updateSubscriptionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Plan    string `json:"plan"`
}

// handleGetUsage returns the caller's usage stats for the current period.
func (h *Handler) handleGetUsage(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetClerkUserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	stats, err := h.usage.GetUserUsageStats(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, err, "Failed to load usage")
		return
	}
	respondWithJSON(w, http.StatusOK, stats)
}

// handleSyncCredits re-reads the directory and re-syncs the cached limit.
func (h *Handler) handleSyncCredits(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetClerkUserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	result, err := h.subscriptions.SyncCredits(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, err, "Failed to sync credits")
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}

// handleUpdateSubscription writes the chosen plan to the directory.
func (h *Handler) handleUpdateSubscription(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetClerkUserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req updateSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid plan")
		return
	}

	tier, err := h.subscriptions.UpdateSubscription(r.Context(), userID, req.Plan)
	if err != nil {
		h.writeServiceError(w, err, "Failed to update subscription")
		return
	}

	respondWithJSON(w, http.StatusOK, updateSubscriptionResponse{
		Success: true,
		Message: "Subscription updated to " + string(tier),
		Plan:    string(tier),
	})
}

// writeServiceError maps service errors to HTTP statuses. Unrecognized errors are logged
// and answered with fallback.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error, fallback string) {
	var insufficient *domain.InsufficientCreditsError
	var validation *domain.ValidationError
	var limited *domain.RateLimitError

	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		respondWithError(w, http.StatusUnauthorized, "Unauthorized")
	case errors.As(err, &validation):
		respondWithError(w, http.StatusBadRequest, validation.Message)
	case errors.Is(err, domain.ErrInvalidCost):
		respondWithError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &insufficient):
		respondWithError(w, http.StatusForbidden, insufficient.Error())
	case errors.Is(err, store.ErrProjectNotFound):
		respondWithError(w, http.StatusNotFound, "Project not found")
	case errors.As(err, &limited):
		w.Header().Set("Retry-After", strconv.Itoa(limited.RetryAfterSeconds))
		respondWithError(w, http.StatusTooManyRequests, limited.Error())
	default:
		h.logger.Error(fallback, "error", err)
		respondWithError(w, http.StatusInternalServerError, fallback)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, errorResponse{Error: message})
}

// respondWithJSON is a helper function to write JSON responses.
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
