package discord

import (
	"fmt"
	"net/url"
	"time"
)

const (
	defaultAPIURL       = "https://discord.com/api/v10"
	defaultAuthorizeURL = "https://discord.com/api/oauth2/authorize"
	defaultTimeout      = 15 * time.Second
)

// Config holds the Discord REST client configuration.
type Config struct {
	// ClientID is the OAuth application client id.
	ClientID string `yaml:"client_id"`

	// ClientSecret is the OAuth application client secret.
	ClientSecret string `yaml:"client_secret"`

	// BotToken authenticates guild member lookups.
	BotToken string `yaml:"bot_token"`

	// RedirectURL is the public /oauth/callback URL registered with the
	// Discord application.
	RedirectURL string `yaml:"redirect_url"`

	// APIURL is the REST API base. Defaults to the v10 API.
	APIURL string `yaml:"api_url"`

	// AuthorizeURL is the OAuth authorization page base.
	AuthorizeURL string `yaml:"authorize_url"`

	// Timeout bounds each REST call. Defaults to 15s.
	Timeout time.Duration `yaml:"timeout"`
}

func (c *Config) defaults() {
	if c.APIURL == "" {
		c.APIURL = defaultAPIURL
	}
	if c.AuthorizeURL == "" {
		c.AuthorizeURL = defaultAuthorizeURL
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
}

func (c *Config) validate() error {
	if c.ClientID == "" {
		return fmt.Errorf("discord: client_id is required")
	}
	if c.ClientSecret == "" {
		return fmt.Errorf("discord: client_secret is required")
	}
	if c.BotToken == "" {
		return fmt.Errorf("discord: bot_token is required")
	}
	if c.RedirectURL == "" {
		return fmt.Errorf("discord: redirect_url is required")
	}

	for name, raw := range map[string]string{
		"redirect_url":  c.RedirectURL,
		"api_url":       c.APIURL,
		"authorize_url": c.AuthorizeURL,
	} {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("discord: %s %q is not a valid http(s) URL", name, raw)
		}
	}

	return nil
}
