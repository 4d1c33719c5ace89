package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/rotos-forum/internal/auth"
	"github.com/sakif/rotos-forum/internal/service"
)

const (
	stateCookieName = "oauth_state"
	stateCookieTTL  = 10 * time.Minute

	// onboardingPath is where freshly provisioned users pick a username.
	onboardingPath = "/onboarding"
)

// OAuthProvider is the browser half of the login flow.
// *auth.GitHubProvider implements it.
type OAuthProvider interface {
	AuthURL(state string) string
	// Exchange trades the callback code for the provider's subject id.
	Exchange(ctx context.Context, code string) (string, error)
}

// AuthHandler runs the OAuth login flow and the session cookie.
//
//	GET  /auth/github/login     → redirect to the provider with a state cookie
//	GET  /auth/github/callback  → check state, provision the user, set the session
//	POST /auth/logout           → clear the session cookie
type AuthHandler struct {
	provider     OAuthProvider
	identity     *service.IdentityService
	sessionTTL   time.Duration
	secureCookie bool
	logger       *slog.Logger
}

func NewAuthHandler(
	provider OAuthProvider,
	identity *service.IdentityService,
	sessionTTL time.Duration,
	secureCookie bool,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		provider:     provider,
		identity:     identity,
		sessionTTL:   sessionTTL,
		secureCookie: secureCookie,
		logger:       logger,
	}
}

// HandleGitHubLogin redirects to the provider's authorization page.
//
// CSRF PROTECTION VIA STATE:
// A random state goes both into a short-lived HttpOnly cookie and into the
// authorization URL. The callback only proceeds when the two match.
func (h *AuthHandler) HandleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	state := xid.New().String()

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		MaxAge:   int(stateCookieTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.provider.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGitHubCallback completes the login.
//
// FLOW:
//  1. Check the state parameter against the cookie
//  2. Exchange the code for the provider subject id
//  3. Find or provision the local user, issue a session token
//  4. Set the session cookie; send new users to onboarding
func (h *AuthHandler) HandleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil || stateCookie.Value == "" || query.Get("state") != stateCookie.Value {
		h.logger.Warn("auth callback: invalid state")
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation_error", Message: "invalid OAuth state"})
		return
	}

	// Single use.
	http.SetCookie(w, &http.Cookie{Name: stateCookieName, Value: "", Path: "/", MaxAge: -1})

	if errParam := query.Get("error"); errParam != "" {
		h.logger.Info("auth callback: user denied authorization", slog.String("error", errParam))
		http.Redirect(w, r, "/?auth=denied", http.StatusSeeOther)
		return
	}

	code := query.Get("code")
	if code == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation_error", Message: "missing OAuth code"})
		return
	}

	subjectID, err := h.provider.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("auth callback: code exchange failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadGateway, ErrorResponse{Error: "external_service_error", Message: "authentication failed"})
		return
	}

	res, err := h.identity.Login(r.Context(), subjectID)
	if err != nil {
		writeError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    res.Token,
		Path:     "/",
		MaxAge:   int(h.sessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})

	h.logger.Info("user signed in",
		slog.String("userID", res.User.ID),
		slog.Bool("needsUsernameSetup", res.User.NeedsUsernameSetup),
	)

	target := "/"
	if res.User.NeedsUsernameSetup {
		target = onboardingPath
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// HandleLogout deletes the session cookie. The token itself stays valid
// until it expires; without the cookie the browser can no longer send it.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	writeSuccess(w, http.StatusOK, nil)
}
