package telegram

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// tokenPattern matches the Telegram bot token format: <digits>:<alphanum+dash>.
var tokenPattern = regexp.MustCompile(`^\d+:[A-Za-z0-9_-]+$`)

// Config holds the Telegram module configuration.
type Config struct {
	// Token is the bot token from @BotFather.
	Token string `yaml:"token"`

	// APIURL is the Bot API base. Defaults to the hosted API.
	APIURL string `yaml:"api_url"`

	// PollingTimeout is the getUpdates long-poll timeout in seconds (0-50).
	PollingTimeout int `yaml:"polling_timeout"`

	// AllowedUpdates restricts which update kinds the poller receives.
	AllowedUpdates []string `yaml:"allowed_updates"`

	// LinkBaseURL is the public base URL of the HTTP gateway. The /start
	// responder appends /oauth/start to it when handing out link URLs.
	LinkBaseURL string `yaml:"link_base_url"`
}

// defaults applies default values to unset fields.
func (c *Config) defaults() {
	if c.PollingTimeout == 0 {
		c.PollingTimeout = 30
	}
	if c.AllowedUpdates == nil {
		c.AllowedUpdates = []string{"message"}
	}
	if c.APIURL == "" {
		c.APIURL = "https://api.telegram.org"
	}
	c.LinkBaseURL = strings.TrimSuffix(c.LinkBaseURL, "/")
}

// validate checks configuration field constraints beyond basic presence
// checks. It is called from Telegram.Validate after defaults have been applied.
func (c *Config) validate() error {
	if c.Token != "" && !tokenPattern.MatchString(c.Token) {
		return fmt.Errorf("telegram: token format invalid (expected <bot_id>:<hash>)")
	}

	if c.APIURL != "" {
		u, err := url.Parse(c.APIURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("telegram: api_url must be a valid http/https URL, got %q", c.APIURL)
		}
	}

	if c.PollingTimeout < 0 || c.PollingTimeout > 50 {
		return fmt.Errorf("telegram: polling_timeout must be 0-50, got %d", c.PollingTimeout)
	}

	if c.LinkBaseURL != "" {
		u, err := url.Parse(c.LinkBaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("telegram: link_base_url must be a valid http/https URL, got %q", c.LinkBaseURL)
		}
	}

	return nil
}
