package verify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bouncerbot/bouncer/internal/actions"
	"github.com/bouncerbot/bouncer/internal/core"
	"github.com/bouncerbot/bouncer/internal/link"
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
	_ core.Starter      = (*Module)(nil)
	_ core.Stopper      = (*Module)(nil)
)

// Config holds the verifier module configuration.
type Config struct {
	// Schedule is the 5-field cron expression for recurring cycles.
	Schedule string `yaml:"schedule"`

	// PerUserDelay is the cooperative sleep between per-user Discord
	// calls within a cycle.
	PerUserDelay time.Duration `yaml:"per_user_delay"`
}

func (c *Config) defaults() {
	if c.Schedule == "" {
		c.Schedule = "0 4 * * *"
	}
	if c.PerUserDelay == 0 {
		c.PerUserDelay = time.Second
	}
}

// Module runs the role verifier: it owns the trigger loop that member events
// and admin tooling nudge, and exposes the cron job for scheduled cycles.
// The wiring phase injects the store, the Discord client and the action
// queue via Wire before Start.
type Module struct {
	config   Config
	logger   *slog.Logger
	verifier *Verifier
	trigger  *Trigger

	cancel context.CancelFunc
	done   chan struct{}
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "verifier",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("verify: decode config: %w", err)
	}
	m.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.config.defaults()
	m.logger = ctx.Logger
	m.trigger = NewTrigger()
	ctx.RegisterService("verifier.trigger", m.trigger)
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	if m.config.PerUserDelay < 0 {
		return fmt.Errorf("verify: per_user_delay must not be negative, got %s", m.config.PerUserDelay)
	}
	return nil
}

// Wire injects the verifier's dependencies. Must be called before Start.
func (m *Module) Wire(store link.Store, roles RoleFetcher, queue actions.Enqueuer) {
	m.verifier = New(store, roles, queue, m.logger, m.config.PerUserDelay)
}

// Start launches the trigger loop.
func (m *Module) Start() error {
	if m.verifier == nil {
		return errors.New("verify: module not wired")
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	go m.run(ctx)
	return nil
}

// run consumes trigger nudges until the module stops. Cycle errors are
// logged; the loop keeps serving later nudges.
func (m *Module) run(ctx context.Context) {
	defer close(m.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.trigger.C():
			if _, err := m.verifier.RunCycle(ctx); err != nil {
				m.logger.Error("triggered verification cycle failed", "error", err)
			}
		}
	}
}

// Stop implements core.Stopper.
func (m *Module) Stop(ctx context.Context) error {
	if m.cancel == nil {
		return nil
	}
	m.cancel()
	select {
	case <-m.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Verifier returns the wired verifier for the manual-trigger endpoint.
func (m *Module) Verifier() *Verifier {
	return m.verifier
}

// Trigger returns the nudge trigger.
func (m *Module) Trigger() *Trigger {
	return m.trigger
}

// Job returns the cron job driving scheduled cycles.
func (m *Module) Job() *Job {
	return &Job{Verifier: m.verifier, ScheduleExpr: m.config.Schedule}
}
