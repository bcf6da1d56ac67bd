package discord

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bouncerbot/bouncer/internal/core"
	"github.com/bouncerbot/bouncer/internal/link"
	"github.com/bouncerbot/bouncer/internal/security"
	"gopkg.in/yaml.v3"
)

func init() {
	core.RegisterModule(&Module{})
}

// Compile-time interface guards.
var (
	_ link.DiscordAuth  = (*Client)(nil)
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Validator    = (*Module)(nil)
	_ core.Starter      = (*Module)(nil)
)

// Module owns the Discord REST client.
type Module struct {
	config Config
	client *Client
	logger *slog.Logger
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "discord.api",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("discord: decode config: %w", err)
	}
	m.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.config.defaults()
	m.logger = ctx.Logger
	m.client = NewClient(m.config)

	ctx.RegisterService("discord.api", m.client)

	// Keep credentials out of log output.
	if svc, ok := ctx.Service("security.redactor"); ok {
		if r, ok := svc.(*security.Redactor); ok {
			r.AddLiteral(m.config.ClientSecret)
			r.AddLiteral(m.config.BotToken)
		}
	}

	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	return m.config.validate()
}

// Start implements core.Starter. It verifies the bot token by fetching the
// bot's own identity, failing startup on a bad credential.
func (m *Module) Start() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	bot, err := m.client.BotUser(ctx)
	if err != nil {
		return fmt.Errorf("discord: verify bot token: %w", err)
	}

	m.logger.Info("discord api connected",
		"bot_id", bot.ID,
		"bot_username", bot.Username,
	)
	return nil
}

// Client returns the REST client.
func (m *Module) Client() *Client {
	return m.client
}
