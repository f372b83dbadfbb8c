package github

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/google/go-github/v66/github"

	"ghsync/pkg/config"
)

// TokenSource names where a token was found
type TokenSource string

const (
	TokenSourceFlag   TokenSource = "flag"
	TokenSourceEnv    TokenSource = "environment"
	TokenSourceConfig TokenSource = "config"
	TokenSourceNone   TokenSource = "none"
)

// TokenEnvVars are checked in order when no token flag is given
var TokenEnvVars = []string{"GITHUB_API_TOKEN", "GITHUB_TOKEN"}

// AuthManager resolves the GitHub token for a run
type AuthManager struct {
	getenv func(string) string
}

// NewAuthManager creates a new authentication manager
func NewAuthManager() *AuthManager {
	return &AuthManager{getenv: os.Getenv}
}

// GetToken resolves the token from the flag value, the environment, then the
// config file. An empty token with TokenSourceNone means unauthenticated access.
func (am *AuthManager) GetToken(flagToken string, cfg *config.Config) (string, TokenSource) {
	if token := strings.TrimSpace(flagToken); token != "" {
		return token, TokenSourceFlag
	}

	for _, name := range TokenEnvVars {
		if token := strings.TrimSpace(am.getenv(name)); token != "" {
			return token, TokenSourceEnv
		}
	}

	if cfg != nil && strings.TrimSpace(cfg.GitHub.Token) != "" {
		return strings.TrimSpace(cfg.GitHub.Token), TokenSourceConfig
	}

	return "", TokenSourceNone
}

// TokenInfo contains information about the authenticated token
type TokenInfo struct {
	User   string   `json:"user"`
	Scopes []string `json:"scopes"`
}

// ValidateToken fetches the authenticated user and the scopes granted to the token
func (c *Client) ValidateToken(ctx context.Context) (*TokenInfo, error) {
	var user github.User
	var resp *github.Response

	err := WithRetry(ctx, func() error {
		req, err := c.newRequest(http.MethodGet, "user", nil)
		if err != nil {
			return err
		}
		resp, err = c.client.Do(ctx, req, &user)
		if err != nil {
			return WrapGitHubError(err, "user")
		}
		return nil
	}, c.retry)
	if err != nil {
		return nil, err
	}

	scopes := []string{}
	if scopeHeader := resp.Header.Get("X-OAuth-Scopes"); scopeHeader != "" {
		scopes = strings.Split(strings.ReplaceAll(scopeHeader, " ", ""), ",")
	}

	return &TokenInfo{
		User:   user.GetLogin(),
		Scopes: scopes,
	}, nil
}

// MissingScopes returns the scopes needed for syncing that the token lacks.
// Fine-grained tokens report no scopes and are not checked.
func (t *TokenInfo) MissingScopes() []string {
	if len(t.Scopes) == 0 {
		return nil
	}

	scopeMap := make(map[string]bool)
	for _, scope := range t.Scopes {
		scopeMap[scope] = true
	}
	if scopeMap["repo"] || scopeMap["public_repo"] {
		return nil
	}
	return []string{"repo"}
}

// GetAuthInstructions returns instructions for setting up GitHub authentication
func GetAuthInstructions() string {
	return fmt.Sprintf(`GitHub authentication is required. Please set up authentication using one of the following methods:

1. Command line flag:
   ghsync labels --token "your_personal_access_token" ...

2. Environment Variable (Recommended for CI/CD):
   export %s="your_personal_access_token"

3. Configuration File:
   Add the following to %s:

   github:
     token: "your_personal_access_token"

To create a personal access token:
1. Go to GitHub Settings > Developer settings > Personal access tokens
2. Click "Generate new token (classic)"
3. Select the following scopes:
   - repo (Full control of private repositories)
   - public_repo is enough when only public repositories are synced
4. Copy the generated token and use it with one of the methods above`, TokenEnvVars[0], config.DisplayPath())
}
