package actions

import (
	"context"

	"github.com/bouncerbot/bouncer/internal/core"
)

func init() {
	core.RegisterModule(&Module{})
}

// Compile-time interface guards.
var (
	_ core.Provisioner = (*Module)(nil)
	_ core.Starter     = (*Module)(nil)
	_ core.Stopper     = (*Module)(nil)
	_ Enqueuer         = (*Queue)(nil)
)

// Module exposes the action queue to the module system. The queue is
// registered as the "actions.queue" service at provision time; the wiring
// phase binds the Telegram performer before Start.
type Module struct {
	queue *Queue
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "actions",
		New: func() core.Module { return &Module{} },
	}
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.queue = NewQueue(ctx.Logger)
	ctx.RegisterService("actions.queue", m.queue)
	return nil
}

// Queue returns the module's queue for wiring.
func (m *Module) Queue() *Queue {
	return m.queue
}

// Start implements core.Starter.
func (m *Module) Start() error {
	return m.queue.Start()
}

// Stop implements core.Stopper.
func (m *Module) Stop(ctx context.Context) error {
	return m.queue.Stop(ctx)
}
