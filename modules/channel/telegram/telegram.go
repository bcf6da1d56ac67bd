package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bouncerbot/bouncer/internal/actions"
	"github.com/bouncerbot/bouncer/internal/core"
	"github.com/bouncerbot/bouncer/internal/security"
	"gopkg.in/yaml.v3"
)

func init() {
	core.RegisterModule(&Telegram{})
}

// Compile-time interface guards.
var (
	_ actions.Performer = (*Telegram)(nil)
	_ core.Configurable = (*Telegram)(nil)
	_ core.Provisioner  = (*Telegram)(nil)
	_ core.Validator    = (*Telegram)(nil)
	_ core.Starter      = (*Telegram)(nil)
	_ core.Stopper      = (*Telegram)(nil)
)

// Telegram is the Telegram side of the bouncer. It answers /start with the
// account-link URL and performs group membership actions (invite, kick) on
// behalf of the action queue.
type Telegram struct {
	config  Config
	client  *Client
	logger  *slog.Logger
	botUser *User
	poller  *Poller
}

// ModuleInfo implements core.Module.
func (t *Telegram) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "channel.telegram",
		New: func() core.Module { return &Telegram{} },
	}
}

// Configure implements core.Configurable.
func (t *Telegram) Configure(node *yaml.Node) error {
	if err := node.Decode(&t.config); err != nil {
		return fmt.Errorf("telegram: decode config: %w", err)
	}
	t.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (t *Telegram) Provision(ctx *core.AppContext) error {
	t.logger = ctx.Logger
	t.client = NewClient(t.config.Token, t.config.APIURL)
	ctx.RegisterService("telegram.actions", t)

	if svc, ok := ctx.Service("security.redactor"); ok {
		if r, ok := svc.(*security.Redactor); ok {
			r.AddLiteral(t.config.Token)
		}
	}
	return nil
}

// Validate implements core.Validator.
func (t *Telegram) Validate() error {
	if t.config.Token == "" {
		return errors.New("telegram: token is required")
	}
	if t.config.LinkBaseURL == "" {
		return errors.New("telegram: link_base_url is required")
	}
	return t.config.validate()
}

// Start implements core.Starter. It validates the bot token with getMe and
// then starts the long-polling loop.
func (t *Telegram) Start() error {
	user, err := t.client.GetMe(context.Background())
	if err != nil {
		return fmt.Errorf("telegram: getMe failed (check token): %w", err)
	}
	t.botUser = user
	t.logger.Info("telegram bot authenticated",
		"id", user.ID,
		"username", user.Username,
	)

	t.poller = NewPoller(t.client, t.logger, t.config)
	t.poller.Start()
	t.logger.Info("telegram polling started",
		"timeout", t.config.PollingTimeout,
	)
	return nil
}

// Stop implements core.Stopper.
func (t *Telegram) Stop(ctx context.Context) error {
	if t.poller != nil {
		t.poller.Stop()
	}
	return nil
}

// Client returns the underlying Bot API client.
func (t *Telegram) Client() *Client {
	return t.client
}
