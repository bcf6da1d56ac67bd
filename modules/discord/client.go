// Package discord implements the Discord REST client used for the OAuth
// identify flow and guild role lookups, plus the gateway event listener
// that nudges the verifier when a member changes. The REST client is
// registered as the "discord.api" service.
package discord

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/bouncerbot/bouncer/internal/link"
)

// maxResponseBytes is the maximum REST response body size (1 MB).
// Identify and member payloads are tiny; this guards against garbage.
const maxResponseBytes = 1 * 1024 * 1024

// Client is a minimal Discord REST client covering the OAuth code exchange,
// the /users/@me identify call, and guild member role lookups.
type Client struct {
	clientID     string
	clientSecret string
	botToken     string
	redirectURL  string
	apiURL       string
	authorizeURL string
	httpClient   *http.Client
}

// NewClient builds a client from the module configuration.
func NewClient(cfg Config) *Client {
	return &Client{
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		botToken:     cfg.BotToken,
		redirectURL:  cfg.RedirectURL,
		apiURL:       strings.TrimSuffix(cfg.APIURL, "/"),
		authorizeURL: cfg.AuthorizeURL,
		httpClient:   &http.Client{Timeout: cfg.Timeout},
	}
}

// AuthorizeURL returns the Discord authorization page URL for the identify
// scope, carrying state for the callback.
func (c *Client) AuthorizeURL(state string) string {
	q := url.Values{}
	q.Set("client_id", c.clientID)
	q.Set("redirect_uri", c.redirectURL)
	q.Set("response_type", "code")
	q.Set("scope", "identify")
	q.Set("state", state)
	return c.authorizeURL + "?" + q.Encode()
}

// ExchangeCode trades an authorization code for a bearer access token.
func (c *Client) ExchangeCode(ctx context.Context, code string) (string, error) {
	form := url.Values{}
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", c.redirectURL)

	body, err := c.postForm(ctx, "/oauth2/token", form)
	if err != nil {
		return "", err
	}

	var tr struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", fmt.Errorf("discord: decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("discord: token response missing access_token")
	}
	return tr.AccessToken, nil
}

// CurrentUser fetches the identity behind an OAuth access token.
func (c *Client) CurrentUser(ctx context.Context, accessToken string) (link.DiscordUser, error) {
	return c.fetchUser(ctx, "Bearer "+accessToken)
}

// BotUser fetches the bot's own identity using the bot token.
func (c *Client) BotUser(ctx context.Context) (link.DiscordUser, error) {
	return c.fetchUser(ctx, "Bot "+c.botToken)
}

func (c *Client) fetchUser(ctx context.Context, authorization string) (link.DiscordUser, error) {
	body, err := c.get(ctx, "/users/@me", authorization)
	if err != nil {
		return link.DiscordUser{}, err
	}

	var u struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	}
	if err := json.Unmarshal(body, &u); err != nil {
		return link.DiscordUser{}, fmt.Errorf("discord: decode user response: %w", err)
	}

	id, err := parseSnowflake(u.ID)
	if err != nil {
		return link.DiscordUser{}, fmt.Errorf("discord: user id: %w", err)
	}
	return link.DiscordUser{ID: id, Username: u.Username}, nil
}

// MemberRoles fetches the role ids a user currently holds in a guild,
// authenticated as the bot. A user who left the guild yields an APIError
// with status 404.
func (c *Client) MemberRoles(ctx context.Context, guildID, userID int64) ([]int64, error) {
	path := fmt.Sprintf("/guilds/%d/members/%d", guildID, userID)

	body, err := c.get(ctx, path, "Bot "+c.botToken)
	if err != nil {
		return nil, err
	}

	var member struct {
		Roles []string `json:"roles"`
	}
	if err := json.Unmarshal(body, &member); err != nil {
		return nil, fmt.Errorf("discord: decode member response: %w", err)
	}

	roles := make([]int64, 0, len(member.Roles))
	for _, r := range member.Roles {
		id, err := parseSnowflake(r)
		if err != nil {
			return nil, fmt.Errorf("discord: member role id: %w", err)
		}
		roles = append(roles, id)
	}
	return roles, nil
}

// get performs an authenticated GET and returns the body of a 2xx response.
func (c *Client) get(ctx context.Context, path, authorization string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("discord: create request: %w", err)
	}
	req.Header.Set("Authorization", authorization)

	return c.do(req)
}

// postForm performs a form-encoded POST and returns the body of a 2xx
// response.
func (c *Client) postForm(ctx context.Context, path string, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+path,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("discord: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("discord: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("discord: read response: %w", err)
	}

	if err := mapAPIError(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

// parseSnowflake converts a Discord string id into an int64.
func parseSnowflake(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid snowflake %q", s)
	}
	return id, nil
}
