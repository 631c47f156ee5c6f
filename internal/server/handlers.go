package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/relay-crm/relay/internal/auth"
	"github.com/relay-crm/relay/internal/repository"
	"github.com/relay-crm/relay/internal/retrieval"
	"github.com/relay-crm/relay/internal/service"
)

// maxImportBytes caps the CSV upload size.
const maxImportBytes = 32 << 20

type handlers struct {
	search      *service.SearchService
	contacts    *service.ContactService
	invitations *service.InvitationService
	emails      *service.EmailService
	jwt         *auth.JWTManager
	logger      *slog.Logger
}

// errorBody is the single error shape every endpoint returns.
type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// listBody wraps paginated collection responses.
type listBody struct {
	Items      any `json:"items"`
	TotalCount int `json:"total_count"`
}

// tokenBody is the response shape of the token endpoints.
type tokenBody struct {
	Token string `json:"token"`
}

// handleIssueToken exchanges authenticated credentials for a bearer token.
// Clients that hold only an API key use this to obtain a short-lived JWT.
func (h *handlers) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	if h.jwt == nil {
		h.writeError(w, errors.New("token issuing is not configured"))
		return
	}
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		h.writeError(w, errors.New("user context not found"))
		return
	}

	token, err := h.jwt.GenerateToken(user.ID, user.Email)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(h.logger, w, http.StatusOK, tokenBody{Token: token})
}

// handleRefreshToken exchanges an expired-but-intact bearer token for a
// fresh one. Unauthenticated: the token itself is the credential.
func (h *handlers) handleRefreshToken(w http.ResponseWriter, r *http.Request) {
	if h.jwt == nil {
		h.writeError(w, errors.New("token issuing is not configured"))
		return
	}
	var input struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil || input.Token == "" {
		h.writeError(w, &service.ValidationError{Message: "token is required"})
		return
	}

	token, err := h.jwt.RefreshToken(input.Token)
	if err != nil {
		writeJSON(h.logger, w, http.StatusUnauthorized, errorBody{Kind: "unauthorized", Message: "invalid token"})
		return
	}
	writeJSON(h.logger, w, http.StatusOK, tokenBody{Token: token})
}

func (h *handlers) handleSearch(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		h.writeError(w, errors.New("user context not found"))
		return
	}

	var req service.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, &service.ValidationError{Message: "invalid request body"})
		return
	}

	resp, err := h.search.Search(r.Context(), userID, &req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(h.logger, w, http.StatusOK, resp)
}

func (h *handlers) handleCreateContact(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		h.writeError(w, errors.New("user context not found"))
		return
	}

	var input service.ContactInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.writeError(w, &service.ValidationError{Message: "invalid request body"})
		return
	}

	dto, err := h.contacts.Create(r.Context(), userID, &input)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(h.logger, w, http.StatusCreated, dto)
}

func (h *handlers) handleGetContact(w http.ResponseWriter, r *http.Request) {
	userID, id, err := h.scopedID(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	dto, err := h.contacts.Get(r.Context(), id, userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(h.logger, w, http.StatusOK, dto)
}

func (h *handlers) handleListContacts(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		h.writeError(w, errors.New("user context not found"))
		return
	}

	limit, offset := pagination(r)
	dtos, total, err := h.contacts.List(r.Context(), userID, limit, offset)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(h.logger, w, http.StatusOK, listBody{Items: dtos, TotalCount: total})
}

func (h *handlers) handleUpdateContact(w http.ResponseWriter, r *http.Request) {
	userID, id, err := h.scopedID(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var input service.ContactInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.writeError(w, &service.ValidationError{Message: "invalid request body"})
		return
	}

	dto, err := h.contacts.Update(r.Context(), id, userID, &input)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(h.logger, w, http.StatusOK, dto)
}

func (h *handlers) handleDeleteContact(w http.ResponseWriter, r *http.Request) {
	userID, id, err := h.scopedID(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if err := h.contacts.Delete(r.Context(), id, userID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) handleImportContacts(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		h.writeError(w, errors.New("user context not found"))
		return
	}

	body := http.MaxBytesReader(w, r.Body, maxImportBytes)
	defer body.Close()

	result, err := h.contacts.Import(r.Context(), userID, body)
	if err != nil {
		h.writeError(w, &service.ValidationError{Message: err.Error()})
		return
	}
	writeJSON(h.logger, w, http.StatusOK, result)
}

func (h *handlers) handleCreateInvitation(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		h.writeError(w, errors.New("user context not found"))
		return
	}

	var input struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.writeError(w, &service.ValidationError{Message: "invalid request body"})
		return
	}

	dto, err := h.invitations.Create(r.Context(), userID, input.Email)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(h.logger, w, http.StatusCreated, dto)
}

func (h *handlers) handleAcceptInvitation(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.writeError(w, &service.ValidationError{Message: "invalid request body"})
		return
	}

	dto, err := h.invitations.Accept(r.Context(), input.Token)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(h.logger, w, http.StatusOK, dto)
}

func (h *handlers) handleListInvitations(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		h.writeError(w, errors.New("user context not found"))
		return
	}

	limit, offset := pagination(r)
	dtos, total, err := h.invitations.List(r.Context(), userID, limit, offset)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(h.logger, w, http.StatusOK, listBody{Items: dtos, TotalCount: total})
}

func (h *handlers) handleRevokeInvitation(w http.ResponseWriter, r *http.Request) {
	userID, id, err := h.scopedID(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if err := h.invitations.Revoke(r.Context(), id, userID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) handleScheduleEmail(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		h.writeError(w, errors.New("user context not found"))
		return
	}

	var input service.ScheduleEmailInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.writeError(w, &service.ValidationError{Message: "invalid request body"})
		return
	}

	dto, err := h.emails.Schedule(r.Context(), userID, &input)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(h.logger, w, http.StatusCreated, dto)
}

func (h *handlers) handleListEmails(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		h.writeError(w, errors.New("user context not found"))
		return
	}

	limit, offset := pagination(r)
	dtos, total, err := h.emails.List(r.Context(), userID, r.URL.Query().Get("status"), limit, offset)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(h.logger, w, http.StatusOK, listBody{Items: dtos, TotalCount: total})
}

// scopedID resolves the authenticated user and the {id} path parameter.
func (h *handlers) scopedID(r *http.Request) (uuid.UUID, uuid.UUID, error) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		return uuid.Nil, uuid.Nil, errors.New("user context not found")
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, uuid.Nil, &service.ValidationError{Message: "invalid id"}
	}
	return userID, id, nil
}

// writeError maps domain errors onto the error taxonomy and status codes.
func (h *handlers) writeError(w http.ResponseWriter, err error) {
	var vErr *service.ValidationError

	switch {
	case errors.As(err, &vErr):
		writeJSON(h.logger, w, http.StatusBadRequest, errorBody{Kind: "invalid_request", Message: vErr.Message})
	case errors.Is(err, retrieval.ErrEmptyQuery):
		writeJSON(h.logger, w, http.StatusBadRequest, errorBody{Kind: "invalid_request", Message: err.Error()})
	case errors.Is(err, repository.ErrNotFound):
		writeJSON(h.logger, w, http.StatusNotFound, errorBody{Kind: "not_found", Message: "not found"})
	case errors.Is(err, retrieval.ErrUpstreamUnavailable):
		h.logger.Error("upstream failure", "error", err)
		writeJSON(h.logger, w, http.StatusBadGateway, errorBody{Kind: "upstream_unavailable", Message: "a backing service is unavailable"})
	default:
		h.logger.Error("internal error", "error", err)
		writeJSON(h.logger, w, http.StatusInternalServerError, errorBody{Kind: "internal", Message: "internal error"})
	}
}

func pagination(r *http.Request) (limit, offset int) {
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	return limit, offset
}

func writeJSON(logger *slog.Logger, w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil && logger != nil {
		logger.Warn("failed to encode response", "error", err)
	}
}
