package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/sakif/rotos-forum/internal/apperror"
	"github.com/sakif/rotos-forum/internal/model"
	"github.com/sakif/rotos-forum/internal/service"
)

// AdminHandler exposes the moderation operations. Permission checks live in
// ModerationService; the routes only require a session.
type AdminHandler struct {
	moderation *service.ModerationService
	logger     *slog.Logger
}

func NewAdminHandler(moderation *service.ModerationService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{moderation: moderation, logger: logger}
}

type roleRequest struct {
	Role string `json:"role"`
}

// HandleSetRole changes a user's role (admins only).
//
// HTTP: PUT /api/admin/users/{id}/role
// REQUEST BODY: {"role": "moderator"}
func (h *AdminHandler) HandleSetRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.moderation.SetRole(r.Context(), currentUser(r), r.PathValue("id"), model.Role(req.Role))
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, user)
}

// banRequest.Duration is a Go duration string ("24h", "168h"). Empty bans
// permanently; an empty reason stores the default reason.
type banRequest struct {
	Reason   string `json:"reason"`
	Duration string `json:"duration"`
}

// HandleBan bans a user, or edits the reason and expiry of an existing ban.
//
// HTTP: POST /api/admin/users/{id}/ban
// REQUEST BODY: {"reason": "spam", "duration": "24h"}
func (h *AdminHandler) HandleBan(w http.ResponseWriter, r *http.Request) {
	var req banRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	var duration time.Duration
	if req.Duration != "" {
		d, err := time.ParseDuration(req.Duration)
		if err != nil {
			writeError(w, apperror.ValidationFailed("duration", "duration must look like 24h or 90m"))
			return
		}
		duration = d
	}

	user, err := h.moderation.Ban(r.Context(), currentUser(r), r.PathValue("id"), service.BanRequest{
		Reason:   req.Reason,
		Duration: duration,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, user)
}

// HandleUnban lifts a ban.
//
// HTTP: DELETE /api/admin/users/{id}/ban
func (h *AdminHandler) HandleUnban(w http.ResponseWriter, r *http.Request) {
	user, err := h.moderation.Unban(r.Context(), currentUser(r), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, user)
}

// HandleDeleteUser deletes an account and everything it authored.
//
// HTTP: DELETE /api/admin/users/{id}
// The response reports how many rows each step removed.
func (h *AdminHandler) HandleDeleteUser(w http.ResponseWriter, r *http.Request) {
	report, err := h.moderation.DeleteUser(r.Context(), currentUser(r), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, report)
}
