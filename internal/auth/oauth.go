package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

const defaultGitHubAPI = "https://api.github.com"

// githubUser is the part of GitHub's user object we read. The same shape is
// returned by /user (the signed-in account) and /user/{id} (any account).
type githubUser struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	Email     string `json:"email"` // empty when hidden in GitHub settings
	AvatarURL string `json:"avatar_url"`
}

// Profile is what the identity provider knows about a subject.
type Profile struct {
	FirstName string
	LastName  string
	Username  string // may be empty
	Email     string // may be empty
	ImageURL  string
}

// GitHubConfig configures GitHubProvider.
type GitHubConfig struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
	// APIToken authenticates server-side profile lookups. Optional; without
	// it lookups use GitHub's anonymous rate limit.
	APIToken string
	// APIBaseURL defaults to https://api.github.com.
	APIBaseURL string
}

// GitHubProvider is the external identity provider. It runs the OAuth
// authorization code flow for login, and answers profile lookups by subject
// id for user provisioning.
//
// The subject id is GitHub's numeric account id in decimal: it never changes,
// even when the user renames their login.
type GitHubProvider struct {
	config   *oauth2.Config
	apiBase  string
	apiToken string
}

func NewGitHubProvider(cfg GitHubConfig) *GitHubProvider {
	base := strings.TrimRight(cfg.APIBaseURL, "/")
	if base == "" {
		base = defaultGitHubAPI
	}
	return &GitHubProvider{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.CallbackURL,
			Scopes:       []string{"read:user", "user:email"},
			Endpoint:     github.Endpoint,
		},
		apiBase:  base,
		apiToken: cfg.APIToken,
	}
}

// AuthURL returns the GitHub authorization URL. state must be echoed back
// by the callback; the handler checks it against a cookie to stop CSRF.
func (p *GitHubProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange trades the callback code for the signed-in account's subject id.
func (p *GitHubProvider) Exchange(ctx context.Context, code string) (string, error) {
	tok, err := p.config.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("auth: exchanging OAuth code: %w", err)
	}

	u, err := p.getUser(ctx, p.config.Client(ctx, tok), p.apiBase+"/user")
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(u.ID, 10), nil
}

// FetchProfile looks up any account by subject id.
func (p *GitHubProvider) FetchProfile(ctx context.Context, subjectID string) (*Profile, error) {
	if _, err := strconv.ParseInt(subjectID, 10, 64); err != nil {
		return nil, fmt.Errorf("auth: malformed GitHub subject id %q", subjectID)
	}

	// A nil TokenSource gives the plain context client.
	var src oauth2.TokenSource
	if p.apiToken != "" {
		src = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: p.apiToken})
	}

	u, err := p.getUser(ctx, oauth2.NewClient(ctx, src), p.apiBase+"/user/"+subjectID)
	if err != nil {
		return nil, err
	}

	first, last := splitName(u.Name)
	return &Profile{
		FirstName: first,
		LastName:  last,
		Username:  u.Login,
		Email:     u.Email,
		ImageURL:  u.AvatarURL,
	}, nil
}

func (p *GitHubProvider) getUser(ctx context.Context, client *http.Client, url string) (*githubUser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("auth: building GitHub request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth: calling GitHub %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("auth: GitHub %s returned status %d", url, resp.StatusCode)
	}

	var u githubUser
	if err := json.NewDecoder(resp.Body).Decode(&u); err != nil {
		return nil, fmt.Errorf("auth: decoding GitHub user: %w", err)
	}
	if u.ID == 0 {
		return nil, fmt.Errorf("auth: GitHub returned an invalid user (ID = 0)")
	}
	return &u, nil
}

// splitName turns "Ada King Lovelace" into ("Ada", "King Lovelace").
func splitName(name string) (first, last string) {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return "", ""
	}
	return fields[0], strings.Join(fields[1:], " ")
}
