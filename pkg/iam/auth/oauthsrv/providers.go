package oauthsrv

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/meridianid/authd/pkg/iam/auth"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"
)

// GoogleProvider implements auth.OAuthProviderClient against Google's
// OAuth2 authorization-code flow, requesting the openid/email/profile
// scopes and reading the userinfo endpoint for the profile.
type GoogleProvider struct {
	cfg *oauth2.Config
}

func NewGoogleProvider(clientID, clientSecret, redirectURL string) *GoogleProvider {
	return &GoogleProvider{cfg: &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       []string{"openid", "email", "profile"},
		Endpoint:     google.Endpoint,
	}}
}

func (p *GoogleProvider) AuthorizationURL(state string) string {
	return p.cfg.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

type googleUserInfo struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

func (p *GoogleProvider) Exchange(ctx context.Context, code string) (*auth.OAuthUserInfo, error) {
	token, err := p.cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("google: exchange failed: %w", err)
	}

	client := p.cfg.Client(ctx, token)
	resp, err := client.Get("https://www.googleapis.com/oauth2/v2/userinfo")
	if err != nil {
		return nil, fmt.Errorf("google: userinfo request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("google: reading userinfo response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("google: userinfo returned status %d", resp.StatusCode)
	}

	var info googleUserInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("google: decoding userinfo response: %w", err)
	}

	return &auth.OAuthUserInfo{
		ProviderID: info.ID,
		Email:      info.Email,
		Name:       info.Name,
		AvatarURL:  info.Picture,
	}, nil
}

// GitHubProvider implements auth.OAuthProviderClient against GitHub's
// OAuth2 authorization-code flow. When the primary user object carries no
// public email, it falls back to the emails endpoint and picks the
// account's primary address, per spec.
type GitHubProvider struct {
	cfg *oauth2.Config
}

func NewGitHubProvider(clientID, clientSecret, redirectURL string) *GitHubProvider {
	return &GitHubProvider{cfg: &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       []string{"read:user", "user:email"},
		Endpoint:     github.Endpoint,
	}}
}

func (p *GitHubProvider) AuthorizationURL(state string) string {
	return p.cfg.AuthCodeURL(state)
}

type githubUser struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

func (p *GitHubProvider) Exchange(ctx context.Context, code string) (*auth.OAuthUserInfo, error) {
	token, err := p.cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("github: exchange failed: %w", err)
	}

	client := p.cfg.Client(ctx, token)

	user, err := getGitHubJSON[githubUser](client, "https://api.github.com/user")
	if err != nil {
		return nil, err
	}

	if user.Email == "" {
		emails, err := getGitHubJSON[[]githubEmail](client, "https://api.github.com/user/emails")
		if err != nil {
			return nil, err
		}
		for _, e := range *emails {
			if e.Primary {
				user.Email = e.Email
				break
			}
		}
	}

	name := user.Name
	if name == "" {
		name = user.Login
	}

	return &auth.OAuthUserInfo{
		ProviderID: fmt.Sprintf("%d", user.ID),
		Email:      user.Email,
		Name:       name,
		AvatarURL:  user.AvatarURL,
	}, nil
}

func getGitHubJSON[T any](client *http.Client, url string) (*T, error) {
	resp, err := client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("github: request to %s failed: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("github: reading response from %s: %w", url, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("github: %s returned status %d", url, resp.StatusCode)
	}

	var v T
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, fmt.Errorf("github: decoding response from %s: %w", url, err)
	}
	return &v, nil
}
