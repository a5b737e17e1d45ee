package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/matheuscscp/mcp-github-oauth-bridge/internal/provider"
)

type githubUser struct {
	Login string `json:"login"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

func contextWithHTTPClient(ctx context.Context, c *http.Client) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c)
}

func (a *Adapter) verifyUser(ctx context.Context, ts oauth2.TokenSource) (*provider.User, error) {
	client := oauth2.NewClient(ctx, ts)

	var u githubUser
	if err := a.get(ctx, client, "/user", &u); err != nil {
		return nil, err
	}
	if u.Login == "" {
		return nil, fmt.Errorf("user: missing login")
	}

	// A private email is not in the profile. GitHub Apps need an extra
	// permission to list emails, so only OAuth apps ask.
	if u.Email == "" && !a.conf.GitHubApp {
		var emails []githubEmail
		if err := a.get(ctx, client, "/user/emails", &emails); err != nil {
			return nil, err
		}
		for _, e := range emails {
			if e.Primary && e.Verified {
				u.Email = e.Email
				break
			}
		}
	}

	return &provider.User{
		Login: u.Login,
		Name:  u.Name,
		Email: u.Email,
	}, nil
}

func (a *Adapter) get(ctx context.Context, client *http.Client, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.conf.APIURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request for %s: %w", path, err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: %s", path, resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("error unmarshaling github %s response: %w", path, err)
	}
	return nil
}
