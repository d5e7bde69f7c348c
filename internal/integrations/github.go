package integrations

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/conduit-lang/metricsd/internal/models"
)

// ProviderGitHub is the provider name of GitHub integrations
const ProviderGitHub = "github"

// CodeownersLocations are the paths GitHub reads CODEOWNERS from, in order
var CodeownersLocations = []string{"CODEOWNERS", ".github/CODEOWNERS", "docs/CODEOWNERS"}

// GitHubConfig configures GitHub installations
type GitHubConfig struct {
	// BaseURL of the REST API, https://api.github.com for github.com
	BaseURL string
	// Token authenticates API requests; empty for anonymous access
	Token   string
	Timeout time.Duration
}

// GitHubInstallation reads repositories through the GitHub REST API
type GitHubInstallation struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewGitHubProvider returns a provider creating GitHub installations
func NewGitHubProvider(config GitHubConfig) Provider {
	return func(_ models.Integration, _ int64) (Installation, error) {
		return NewGitHubInstallation(config), nil
	}
}

// NewGitHubInstallation creates a GitHub installation
func NewGitHubInstallation(config GitHubConfig) *GitHubInstallation {
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = "https://api.github.com"
	}
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &GitHubInstallation{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   config.Token,
		client:  &http.Client{Timeout: timeout},
	}
}

type githubContent struct {
	HTMLURL string `json:"html_url"`
	Path    string `json:"path"`
}

// GetCodeownerFile tries each CODEOWNERS location and returns the first
// file found
func (g *GitHubInstallation) GetCodeownerFile(ctx context.Context, repo, ref string) (*CodeownerFile, error) {
	for _, path := range CodeownersLocations {
		file, err := g.fetch(ctx, repo, ref, path)
		if err != nil {
			return nil, err
		}
		if file != nil {
			return file, nil
		}
	}
	return nil, nil
}

func (g *GitHubInstallation) fetch(ctx context.Context, repo, ref, path string) (*CodeownerFile, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/contents/%s?ref=%s", g.baseURL, repo, path, url.QueryEscape(ref))

	meta, found, err := g.get(ctx, endpoint, "application/vnd.github+json")
	if err != nil || !found {
		return nil, err
	}
	var content githubContent
	if err := json.Unmarshal(meta, &content); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	raw, found, err := g.get(ctx, endpoint, "application/vnd.github.raw")
	if err != nil || !found {
		return nil, err
	}

	return &CodeownerFile{
		Raw:      string(raw),
		Filepath: content.Path,
		HTMLURL:  content.HTMLURL,
	}, nil
}

func (g *GitHubInstallation) get(ctx context.Context, endpoint, accept string) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Accept", accept)
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("github request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read github response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, false, nil
	case resp.StatusCode >= 300:
		return nil, false, fmt.Errorf("github returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, true, nil
}
