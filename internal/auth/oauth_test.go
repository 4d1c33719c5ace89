package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFakeGitHub(t *testing.T, wantAuth string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if wantAuth != "" && r.Header.Get("Authorization") != wantAuth {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/user/42":
			w.Write([]byte(`{"id":42,"login":"octocat","name":"Mona Lisa Octocat","email":"mona@github.com","avatar_url":"https://a/42.png"}`))
		case "/user/7":
			w.Write([]byte(`{"id":7,"login":"ghost","name":"","email":null,"avatar_url":""}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchProfile(t *testing.T) {
	srv := newFakeGitHub(t, "Bearer app-token")
	p := NewGitHubProvider(GitHubConfig{APIBaseURL: srv.URL + "/", APIToken: "app-token"})

	profile, err := p.FetchProfile(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, &Profile{
		FirstName: "Mona",
		LastName:  "Lisa Octocat",
		Username:  "octocat",
		Email:     "mona@github.com",
		ImageURL:  "https://a/42.png",
	}, profile)
}

func TestFetchProfile_EmptyName(t *testing.T) {
	srv := newFakeGitHub(t, "")
	p := NewGitHubProvider(GitHubConfig{APIBaseURL: srv.URL})

	profile, err := p.FetchProfile(context.Background(), "7")
	require.NoError(t, err)
	assert.Empty(t, profile.FirstName)
	assert.Empty(t, profile.Email)
	assert.Equal(t, "ghost", profile.Username)
}

func TestFetchProfile_Errors(t *testing.T) {
	srv := newFakeGitHub(t, "")
	p := NewGitHubProvider(GitHubConfig{APIBaseURL: srv.URL})

	_, err := p.FetchProfile(context.Background(), "999")
	assert.ErrorContains(t, err, "status 404")

	_, err = p.FetchProfile(context.Background(), "../admin")
	assert.ErrorContains(t, err, "malformed")
}

func TestAuthURL(t *testing.T) {
	p := NewGitHubProvider(GitHubConfig{ClientID: "cid", CallbackURL: "http://localhost/cb"})
	u := p.AuthURL("xyz")
	assert.True(t, strings.HasPrefix(u, "https://github.com/login/oauth/authorize"))
	assert.Contains(t, u, "state=xyz")
	assert.Contains(t, u, "client_id=cid")
}
