/**
 * @description
 * This file contains the HTTP handler for Clerk webhooks. It is the push half of
 * plan reconciliation: a Svix-signed subscription or user event arrives, is
 * verified, and the subject's credit limit is overwritten from the plan signal.
 *
 * Key features:
 * - Security: the svix headers and HMAC signature are checked before the payload
 *   is decoded, so unverified events never reach the ledger.
 * - Retries: processing failures answer 500 so the sender redelivers.
 */
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/buildbuddy/credits-service/internal/app"
	"github.com/buildbuddy/credits-service/internal/domain"
	"github.com/buildbuddy/credits-service/internal/metrics"
)

// WebhookReconciler applies a verified event to the ledger.
type WebhookReconciler interface {
	Reconcile(ctx context.Context, event domain.ClerkWebhookEvent) (app.ReconcileResult, error)
}

// WebhookHandler processes incoming webhooks from Clerk.
type WebhookHandler struct {
	verifier   *SvixVerifier
	reconciler WebhookReconciler
	metrics    metrics.CreditsMetrics
	logger     *slog.Logger
}

// NewWebhookHandler creates a new handler for the webhook endpoint.
func NewWebhookHandler(verifier *SvixVerifier, reconciler WebhookReconciler, m metrics.CreditsMetrics, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		verifier:   verifier,
		reconciler: reconciler,
		metrics:    m,
		logger:     logger,
	}
}

// ServeHTTP implements the http.Handler interface.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetReqID(r.Context())
	if requestID == "" {
		requestID = uuid.NewString()
	}
	logger := h.logger.With("request_id", requestID)

	// 1. Headers are checked before the body is read.
	headers, err := SvixHeadersFromRequest(r)
	if err != nil {
		h.metrics.IncWebhook("unknown", metrics.WebhookRejected)
		logger.Warn("webhook rejected", "error", err)
		http.Error(w, "Error occurred -- no svix headers", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookPayloadSize))
	if err != nil {
		h.metrics.IncWebhook("unknown", metrics.WebhookRejected)
		logger.Warn("cannot read webhook body", "error", err)
		http.Error(w, "Cannot read request body", http.StatusBadRequest)
		return
	}

	// 2. Verify the signature over the raw body.
	if err := h.verifier.Verify(headers, body); err != nil {
		h.metrics.IncWebhook("unknown", metrics.WebhookRejected)
		logger.Warn("webhook signature verification failed", "svix_id", headers.ID, "error", err)
		http.Error(w, "Error occurred", http.StatusBadRequest)
		return
	}

	// 3. Decode and reconcile.
	var event domain.ClerkWebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		h.metrics.IncWebhook("unknown", metrics.WebhookFailed)
		logger.Error("invalid webhook payload", "svix_id", headers.ID, "error", err)
		http.Error(w, "Webhook processing failed", http.StatusInternalServerError)
		return
	}

	logger.Info("received webhook event", "svix_id", headers.ID, "event_type", event.Type)

	result, err := h.reconciler.Reconcile(r.Context(), event)
	if err != nil {
		if errors.Is(err, domain.ErrMissingSubject) {
			logger.Error("webhook event has no user id", "event_type", event.Type)
		} else {
			logger.Error("webhook processing failed", "event_type", event.Type, "error", err)
		}
		http.Error(w, "Webhook processing failed", http.StatusInternalServerError)
		return
	}

	if result.Handled {
		logger.Info("webhook applied", "event_type", event.Type, "user_id", result.UserID, "tier", result.Tier)
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Webhook processed successfully"))
}
