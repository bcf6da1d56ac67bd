package link

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/bouncerbot/bouncer/internal/actions"
	"github.com/bouncerbot/bouncer/internal/core"
	"gopkg.in/yaml.v3"
)

func init() {
	core.RegisterModule(&Module{})
}

// Compile-time interface guards.
var (
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Validator    = (*Module)(nil)
)

// ModuleConfig is the YAML configuration for the linker module.
type ModuleConfig struct {
	// GuildID is the Discord guild new links are associated with.
	GuildID int64 `yaml:"guild_id"`

	// StateTTLSeconds is the pending-state validity window in seconds.
	StateTTLSeconds int `yaml:"state_ttl_seconds"`
}

// defaults applies default values to unset fields.
func (c *ModuleConfig) defaults() {
	if c.StateTTLSeconds == 0 {
		c.StateTTLSeconds = int(DefaultStateTTL / time.Second)
	}
}

// validate checks configuration constraints after defaults are applied.
func (c *ModuleConfig) validate() error {
	if c.GuildID == 0 {
		return fmt.Errorf("linker: guild_id is required")
	}
	if c.StateTTLSeconds < 60 || c.StateTTLSeconds > 3600 {
		return fmt.Errorf("linker: state_ttl_seconds must be 60-3600, got %d", c.StateTTLSeconds)
	}
	return nil
}

// Module exposes the OAuth linker to the module system. Its dependencies
// (store, Discord API, action queue) are injected by the wiring phase after
// every module has been provisioned.
type Module struct {
	config ModuleConfig
	logger *slog.Logger
	linker *Linker
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "linker",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("linker: decode config: %w", err)
	}
	m.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.config.defaults()
	m.logger = ctx.Logger
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	return m.config.validate()
}

// Wire builds the Linker from its resolved dependencies. Called by the
// wiring phase after LoadModules and before Start.
func (m *Module) Wire(store Store, discord DiscordAuth, queue actions.Enqueuer) {
	m.linker = New(Config{
		StateTTL: time.Duration(m.config.StateTTLSeconds) * time.Second,
		GuildID:  m.config.GuildID,
	}, store, discord, queue, m.logger)
}

// Linker returns the wired linker instance.
func (m *Module) Linker() *Linker {
	return m.linker
}
