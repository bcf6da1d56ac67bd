package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bouncerbot/bouncer/internal/actions"
	"github.com/bouncerbot/bouncer/internal/core"
	"github.com/bouncerbot/bouncer/internal/cron"
	"github.com/bouncerbot/bouncer/internal/gateway"
	"github.com/bouncerbot/bouncer/internal/link"
	"github.com/bouncerbot/bouncer/internal/verify"
	"github.com/bouncerbot/bouncer/modules/channel/telegram"
	"github.com/bouncerbot/bouncer/modules/discord"
	"github.com/bouncerbot/bouncer/modules/store/sqlite"
)

// schedulerModule wraps the cron scheduler so it participates in the App
// lifecycle alongside the config-loaded modules.
type schedulerModule struct {
	scheduler *cron.Scheduler
}

func (m *schedulerModule) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{ID: "cron"}
}

func (m *schedulerModule) Start() error {
	return m.scheduler.Start()
}

func (m *schedulerModule) Stop(ctx context.Context) error {
	return m.scheduler.Stop(ctx)
}

// wireModules connects the loaded modules to each other and appends the cron
// scheduler to the app lifecycle. Must be called after LoadModules and
// before Start: every module is provisioned but nothing is running yet.
//
// The dependency graph is fixed. The store feeds everyone, the Discord
// client serves the linker and the verifier, the action queue sits between
// decisions (linker, verifier) and effects (Telegram), and the gateway
// exposes the linker and verifier over HTTP.
func wireModules(app *core.App, logger *slog.Logger) error {
	storeMod, err := lookup[*sqlite.Module](app, "store.sqlite")
	if err != nil {
		return err
	}
	discordMod, err := lookup[*discord.Module](app, "discord.api")
	if err != nil {
		return err
	}
	actionsMod, err := lookup[*actions.Module](app, "actions")
	if err != nil {
		return err
	}
	telegramMod, err := lookup[*telegram.Telegram](app, "channel.telegram")
	if err != nil {
		return err
	}
	linkMod, err := lookup[*link.Module](app, "linker")
	if err != nil {
		return err
	}
	verifyMod, err := lookup[*verify.Module](app, "verifier")
	if err != nil {
		return err
	}
	gatewayMod, err := lookup[*gateway.Gateway](app, "gateway.http")
	if err != nil {
		return err
	}

	store := storeMod.Store()
	client := discordMod.Client()
	queue := actionsMod.Queue()

	queue.Bind(telegramMod)
	linkMod.Wire(store, client, queue)
	verifyMod.Wire(store, client, queue)
	gatewayMod.Wire(linkMod.Linker(), verifyMod.Verifier(), store)

	// The gateway event listener is optional: without it, role changes are
	// only picked up by the scheduled cycles.
	if mod, ok := app.Module("discord.events"); ok {
		events, ok := mod.(*discord.Events)
		if !ok {
			return fmt.Errorf("module discord.events has unexpected type %T", mod)
		}
		events.Wire(store, verifyMod.Trigger())
		logger.Info("realtime member events wired to the verifier")
	}

	scheduler := cron.NewScheduler(logger)
	if err := scheduler.RegisterJob(verifyMod.Job()); err != nil {
		return fmt.Errorf("registering verify job: %w", err)
	}
	purge := &cron.PendingPurgeJob{Store: store, Logger: logger}
	if err := scheduler.RegisterJob(purge); err != nil {
		return fmt.Errorf("registering purge job: %w", err)
	}
	app.AppendModule(&schedulerModule{scheduler: scheduler})

	return nil
}

// lookup fetches a loaded module by ID and asserts its concrete type.
// Both failure modes are configuration mistakes, reported as such.
func lookup[T core.Module](app *core.App, id core.ModuleID) (T, error) {
	var zero T
	mod, ok := app.Module(id)
	if !ok {
		return zero, fmt.Errorf("module %s must be configured", id)
	}
	typed, ok := mod.(T)
	if !ok {
		return zero, fmt.Errorf("module %s has unexpected type %T", id, mod)
	}
	return typed, nil
}
