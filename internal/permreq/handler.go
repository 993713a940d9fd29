package permreq

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/gatewise/gatewise/internal/auth"
	"github.com/gatewise/gatewise/internal/platform/httpx"
	"github.com/gatewise/gatewise/internal/shared"
)

// Handler exposes the permission request lifecycle over JSON.
type Handler struct {
	logger  *slog.Logger
	service *Service
	guard   auth.Middleware
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard auth.Middleware) *Handler {
	return &Handler{logger: logger, service: service, guard: guard}
}

// MountRoutes registers the request lifecycle routes. Every route needs
// an authenticated caller; the review routes additionally need admin.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(h.guard.Authenticate)

	r.Post("/", h.handleSubmit)
	r.Get("/user/history", h.handleHistory)

	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAdmin)
		r.Get("/", h.handleListPending)
		r.Get("/{id}", h.handleGet)
		r.Patch("/{id}/approve", h.handleApprove)
		r.Patch("/{id}/deny", h.handleDeny)
	})
}

type requestResponse struct {
	ID          string             `json:"id"`
	UserID      int64              `json:"userId"`
	Requested   shared.Permissions `json:"requestedPermissions"`
	Status      Status             `json:"status"`
	ReviewedBy  *int64             `json:"reviewedBy,omitempty"`
	CreatedAt   time.Time          `json:"createdAt"`
	ReviewedAt  *time.Time         `json:"reviewedAt,omitempty"`
}

type requesterResponse struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

type detailResponse struct {
	requestResponse
	Requester requesterResponse `json:"requester"`
}

type historyEntryResponse struct {
	requestResponse
	ReviewerName *string `json:"reviewerName,omitempty"`
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	identity := shared.IdentityFromContext(r.Context())
	var requested shared.Permissions
	if err := httpx.DecodeJSON(r, &requested); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	req, err := h.service.Submit(r.Context(), identity.UserID, requested)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toRequestResponse(req))
}

func (h *Handler) handleListPending(w http.ResponseWriter, r *http.Request) {
	details, err := h.service.ListPending(r.Context())
	if err != nil {
		h.logger.Error("list pending requests", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]detailResponse, 0, len(details))
	for i := range details {
		out = append(out, toDetailResponse(&details[i]))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := requestID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	detail, err := h.service.GetByID(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toDetailResponse(detail))
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	id, err := requestID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	identity := shared.IdentityFromContext(r.Context())
	// Absent flags decode to false: the admin's body is the whole grant.
	var granted shared.Permissions
	if err := httpx.DecodeJSON(r, &granted); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	req, err := h.service.Approve(r.Context(), id, identity.UserID, granted)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRequestResponse(req))
}

func (h *Handler) handleDeny(w http.ResponseWriter, r *http.Request) {
	id, err := requestID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	identity := shared.IdentityFromContext(r.Context())
	req, err := h.service.Deny(r.Context(), id, identity.UserID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRequestResponse(req))
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	identity := shared.IdentityFromContext(r.Context())
	entries, err := h.service.History(r.Context(), identity.UserID)
	if err != nil {
		h.logger.Error("list request history", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]historyEntryResponse, 0, len(entries))
	for i := range entries {
		out = append(out, historyEntryResponse{
			requestResponse: toRequestResponse(&entries[i].Request),
			ReviewerName:    entries[i].ReviewerName,
		})
	}
	httpx.JSON(w, http.StatusOK, out)
}

func requestID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("permreq: malformed request id: %w", shared.ErrNotFound)
	}
	return id, nil
}

func toRequestResponse(req *Request) requestResponse {
	return requestResponse{
		ID:         req.ID.String(),
		UserID:     req.UserID,
		Requested:  req.Requested,
		Status:     req.Status,
		ReviewedBy: req.ReviewedBy,
		CreatedAt:  req.CreatedAt,
		ReviewedAt: req.ReviewedAt,
	}
}

func toDetailResponse(detail *Detail) detailResponse {
	return detailResponse{
		requestResponse: toRequestResponse(&detail.Request),
		Requester: requesterResponse{
			Email: detail.RequesterEmail,
			Name:  detail.RequesterName,
		},
	}
}
