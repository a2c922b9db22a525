package config

// OAuthConfig configures the Google and GitHub authorization-code flows.
type OAuthConfig struct {
	Google OAuthProviderConfig
	GitHub OAuthProviderConfig
}

// OAuthProviderConfig holds the client credentials and redirect target for
// one OAuth2 provider.
type OAuthProviderConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

func loadOAuthConfig() OAuthConfig {
	return OAuthConfig{
		Google: OAuthProviderConfig{
			ClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
			ClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
			RedirectURL:  getEnv("GOOGLE_REDIRECT_URL", "http://localhost:8080/api/v1/auth/oauth/google/callback"),
		},
		GitHub: OAuthProviderConfig{
			ClientID:     getEnv("GITHUB_CLIENT_ID", ""),
			ClientSecret: getEnv("GITHUB_CLIENT_SECRET", ""),
			RedirectURL:  getEnv("GITHUB_REDIRECT_URL", "http://localhost:8080/api/v1/auth/oauth/github/callback"),
		},
	}
}
