package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/bouncerbot/bouncer/internal/core"
	"github.com/bouncerbot/bouncer/internal/link"
	"github.com/bouncerbot/bouncer/internal/security"
	"github.com/bouncerbot/bouncer/internal/verify"
	"gopkg.in/yaml.v3"
)

func init() {
	core.RegisterModule(&Gateway{})
}

// Linker drives the Discord OAuth link flow on behalf of HTTP handlers.
type Linker interface {
	Start(ctx context.Context, telegramID int64) (string, error)
	Callback(ctx context.Context, code, stateToken string) (string, error)
}

// CycleRunner runs an on-demand verification cycle.
type CycleRunner interface {
	RunCycle(ctx context.Context) (verify.Stats, error)
}

// Gateway is the HTTP gateway module. It exposes the OAuth link endpoints,
// health and metrics, and an authenticated admin API. It is a leaf module,
// nothing imports it.
type Gateway struct {
	config    Config
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time

	// Wired by the application before Start.
	linker   Linker
	verifier CycleRunner
	store    link.Store
}

// ModuleInfo implements core.Module.
func (g *Gateway) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "gateway.http",
		New: func() core.Module { return &Gateway{} },
	}
}

// Configure implements core.Configurable.
func (g *Gateway) Configure(node *yaml.Node) error {
	if err := node.Decode(&g.config); err != nil {
		return err
	}
	g.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (g *Gateway) Provision(ctx *core.AppContext) error {
	g.logger = ctx.Logger

	if svc, ok := ctx.Service("security.redactor"); ok {
		if r, ok := svc.(*security.Redactor); ok {
			r.AddLiteral(g.config.Auth.BearerToken)
			r.AddLiteral(g.config.Auth.BasicPass)
		}
	}

	return nil
}

// Validate implements core.Validator.
func (g *Gateway) Validate() error {
	if _, err := net.ResolveTCPAddr("tcp", g.config.Bind); err != nil {
		return errors.New("gateway: invalid bind address: " + g.config.Bind)
	}
	return nil
}

// Wire hands the gateway its collaborators. Must be called before Start.
func (g *Gateway) Wire(linker Linker, verifier CycleRunner, store link.Store) {
	g.linker = linker
	g.verifier = verifier
	g.store = store
}

// Start implements core.Starter.
func (g *Gateway) Start() error {
	if g.linker == nil || g.verifier == nil || g.store == nil {
		return errors.New("gateway: module not wired")
	}

	g.startedAt = time.Now()

	mux := g.buildRouter()

	g.server = &http.Server{
		Addr:         g.config.Bind,
		Handler:      mux,
		ReadTimeout:  g.config.ReadTimeout,
		WriteTimeout: g.config.WriteTimeout,
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", g.config.Bind)
	if err != nil {
		return errors.New("gateway: listen failed: " + err.Error())
	}

	go func() {
		g.logger.Info("gateway listening", "addr", g.config.Bind)
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve error", "error", err)
		}
	}()

	return nil
}

// Stop implements core.Stopper. Graceful shutdown with configured timeout.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, g.config.ShutdownTimeout)
	defer cancel()

	g.logger.Info("gateway shutting down")
	return g.server.Shutdown(shutdownCtx)
}

// Interface guards.
var (
	_ core.Module       = (*Gateway)(nil)
	_ core.Configurable = (*Gateway)(nil)
	_ core.Provisioner  = (*Gateway)(nil)
	_ core.Validator    = (*Gateway)(nil)
	_ core.Starter      = (*Gateway)(nil)
	_ core.Stopper      = (*Gateway)(nil)
)
