package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/rotos-forum/internal/model"
	"github.com/sakif/rotos-forum/internal/service"
)

// UserHandler serves the signed-in user's own account (/api/me...) and the
// public community reads (/api/users...).
type UserHandler struct {
	users  *service.UserService
	logger *slog.Logger
}

func NewUserHandler(users *service.UserService, logger *slog.Logger) *UserHandler {
	return &UserHandler{users: users, logger: logger}
}

// HandleMe returns the signed-in user.
//
// HTTP: GET /api/me
func (h *UserHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.GetUser(r.Context(), currentUser(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HandleUpdateMe applies profile edits. Omitted fields stay unchanged.
//
// HTTP: PATCH /api/me
// REQUEST BODY: {"bio": "...", "portfolioWebsite": "https://..."}
func (h *UserHandler) HandleUpdateMe(w http.ResponseWriter, r *http.Request) {
	var update model.ProfileUpdate
	if err := decodeJSON(w, r, &update); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.users.UpdateProfile(r.Context(), currentUser(r), update)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, user)
}

type usernameRequest struct {
	Username string `json:"username"`
}

// HandleSetupUsername sets the caller's permanent username.
//
// HTTP: POST /api/me/username
// REQUEST BODY: {"username": "ada_l"}
// 400 malformed, 409 taken.
func (h *UserHandler) HandleSetupUsername(w http.ResponseWriter, r *http.Request) {
	var req usernameRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.users.SetupUsername(r.Context(), currentUser(r), req.Username)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, user)
}

// HandleUsernameAvailable is the live check behind the username form.
//
// HTTP: GET /api/usernames/{username}/available → {"available": true}
func (h *UserHandler) HandleUsernameAvailable(w http.ResponseWriter, r *http.Request) {
	available, err := h.users.CheckUsernameAvailable(r.Context(), r.PathValue("username"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"available": available})
}

// HandleSaved pages through the caller's saved questions.
//
// HTTP: GET /api/me/saved?q=&filter=most_voted&page=1&pageSize=20
func (h *UserHandler) HandleSaved(w http.ResponseWriter, r *http.Request) {
	page, pageSize, err := pageParams(r)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := h.users.SavedQuestions(r.Context(), currentUser(r), service.SavedOptions{
		Search:   r.URL.Query().Get("q"),
		Filter:   service.SavedFilter(r.URL.Query().Get("filter")),
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// HandleToggleSave saves or unsaves a question.
//
// HTTP: POST /api/me/saved/{questionID} → {"success": true, "data": {"saved": true}}
func (h *UserHandler) HandleToggleSave(w http.ResponseWriter, r *http.Request) {
	saved, err := h.users.ToggleSaveQuestion(r.Context(), currentUser(r), r.PathValue("questionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]bool{"saved": saved})
}

// HandleListUsers pages through the community directory.
//
// HTTP: GET /api/users?q=&filter=new_users|old_users|top_contributors&page=1
func (h *UserHandler) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	page, pageSize, err := pageParams(r)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := h.users.ListUsers(r.Context(), service.UserListOptions{
		Search:   r.URL.Query().Get("q"),
		Filter:   service.UserFilter(r.URL.Query().Get("filter")),
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// HandleGetUser returns the profile page: user, totals, reputation, badges.
//
// HTTP: GET /api/users/{id}
func (h *UserHandler) HandleGetUser(w http.ResponseWriter, r *http.Request) {
	info, err := h.users.GetUserInfo(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// HTTP: GET /api/users/{id}/questions?page=
func (h *UserHandler) HandleUserQuestions(w http.ResponseWriter, r *http.Request) {
	page, pageSize, err := pageParams(r)
	if err != nil {
		writeError(w, err)
		return
	}
	result, err := h.users.UserQuestions(r.Context(), r.PathValue("id"), page, pageSize)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// HTTP: GET /api/users/{id}/answers?page=
func (h *UserHandler) HandleUserAnswers(w http.ResponseWriter, r *http.Request) {
	page, pageSize, err := pageParams(r)
	if err != nil {
		writeError(w, err)
		return
	}
	result, err := h.users.UserAnswers(r.Context(), r.PathValue("id"), page, pageSize)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
