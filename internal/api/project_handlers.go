package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/buildbuddy/credits-service/internal/domain"
)

type createProjectRequest struct {
	Value string `json:"value" validate:"required,max=10000"`
}

type createMessageRequest struct {
	Value     string `json:"value" validate:"required,max=10000"`
	ProjectID string `json:"projectId" validate:"required"`
}

// handleCreateProject debits the project cost and starts the first generation job.
func (h *Handler) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetClerkUserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req createProjectRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	project, err := h.projects.CreateProject(r.Context(), userID, req.Value)
	if err != nil {
		h.writeServiceError(w, err, "Failed to create project")
		return
	}
	respondWithJSON(w, http.StatusCreated, project)
}

// handleListProjects returns the caller's projects, newest first.
func (h *Handler) handleListProjects(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetClerkUserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	projects, err := h.projects.ListProjects(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, err, "Failed to list projects")
		return
	}
	if projects == nil {
		projects = []domain.Project{}
	}
	respondWithJSON(w, http.StatusOK, projects)
}

func (h *Handler) handleGetProject(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetClerkUserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	project, err := h.projects.GetProject(r.Context(), userID, chi.URLParam(r, "projectID"))
	if err != nil {
		h.writeServiceError(w, err, "Failed to load project")
		return
	}
	respondWithJSON(w, http.StatusOK, project)
}

func (h *Handler) handleListMessages(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetClerkUserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	messages, err := h.projects.ListMessages(r.Context(), userID, chi.URLParam(r, "projectID"))
	if err != nil {
		h.writeServiceError(w, err, "Failed to list messages")
		return
	}
	if messages == nil {
		messages = []domain.Message{}
	}
	respondWithJSON(w, http.StatusOK, messages)
}

// handleCreateMessage debits the message cost and dispatches a follow-up job.
func (h *Handler) handleCreateMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetClerkUserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req createMessageRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	message, err := h.projects.CreateMessage(r.Context(), userID, req.ProjectID, req.Value)
	if err != nil {
		h.writeServiceError(w, err, "Failed to create message")
		return
	}
	respondWithJSON(w, http.StatusCreated, message)
}

// decodeAndValidate writes a 400 and returns false when the body is not a valid payload.
func (h *Handler) decodeAndValidate(w http.ResponseWriter, r *http.Request, payload interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(payload); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	if err := h.validate.Struct(payload); err != nil {
		respondWithError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) || len(fieldErrors) == 0 {
		return "Invalid request body"
	}

	first := fieldErrors[0]
	switch first.Field() {
	case "Value":
		if first.Tag() == "max" {
			return "Value is too long"
		}
		return "Value is required"
	case "ProjectID":
		return "Project ID is required"
	}
	return "Invalid request body"
}
