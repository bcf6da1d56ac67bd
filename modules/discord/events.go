package discord

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/bouncerbot/bouncer/internal/core"
	"github.com/bouncerbot/bouncer/internal/link"
	"github.com/bouncerbot/bouncer/internal/security"
	"github.com/coder/websocket"
	"gopkg.in/yaml.v3"
)

// Gateway opcodes used by the listener.
const (
	opDispatch       = 0
	opHeartbeat      = 1
	opIdentify       = 2
	opReconnect      = 7
	opInvalidSession = 9
	opHello          = 10
	opHeartbeatACK   = 11
)

// intentGuildMembers is the GUILD_MEMBERS gateway intent bit, required to
// receive member update and remove dispatches.
const intentGuildMembers = 1 << 1

const (
	defaultGatewayURL = "wss://gateway.discord.gg/?v=10&encoding=json"

	// gatewayReadLimit bounds a single gateway frame. READY payloads can
	// run well past the websocket default of 32 KiB.
	gatewayReadLimit = 4 * 1024 * 1024

	initialReconnectBackoff = time.Second
	maxReconnectBackoff     = time.Minute
)

// Dispatch types that affect role verification.
const (
	eventGuildMemberUpdate = "GUILD_MEMBER_UPDATE"
	eventGuildMemberRemove = "GUILD_MEMBER_REMOVE"
)

func init() {
	core.RegisterModule(&Events{})
}

// Compile-time interface guards.
var (
	_ core.Configurable = (*Events)(nil)
	_ core.Provisioner  = (*Events)(nil)
	_ core.Validator    = (*Events)(nil)
	_ core.Starter      = (*Events)(nil)
	_ core.Stopper      = (*Events)(nil)
)

// LinkFinder is the single store lookup the listener needs.
type LinkFinder interface {
	LinkByDiscordID(ctx context.Context, discordID int64) (*link.UserLink, error)
}

// Nudger asks the verifier to run a cycle soon.
type Nudger interface {
	Nudge()
}

// EventsConfig holds the gateway listener configuration.
type EventsConfig struct {
	// BotToken authenticates the gateway session.
	BotToken string `yaml:"bot_token"`

	// GatewayURL is the websocket endpoint. Defaults to the v10 gateway.
	GatewayURL string `yaml:"gateway_url"`
}

func (c *EventsConfig) defaults() {
	if c.GatewayURL == "" {
		c.GatewayURL = defaultGatewayURL
	}
}

func (c *EventsConfig) validate() error {
	if c.BotToken == "" {
		return fmt.Errorf("discord: events bot_token is required")
	}
	u, err := url.Parse(c.GatewayURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("discord: gateway_url %q is not a valid URL", c.GatewayURL)
	}
	return nil
}

// Events maintains a Discord gateway session and nudges the verifier when
// a linked member's guild state changes. Sessions are never resumed; after
// any failure the listener reconnects from scratch with backoff.
type Events struct {
	config EventsConfig
	logger *slog.Logger

	links   LinkFinder
	trigger Nudger

	cancel context.CancelFunc
	done   chan struct{}
}

// ModuleInfo implements core.Module.
func (e *Events) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "discord.events",
		New: func() core.Module { return &Events{} },
	}
}

// Configure implements core.Configurable.
func (e *Events) Configure(node *yaml.Node) error {
	if err := node.Decode(&e.config); err != nil {
		return fmt.Errorf("discord: decode events config: %w", err)
	}
	e.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (e *Events) Provision(ctx *core.AppContext) error {
	e.config.defaults()
	e.logger = ctx.Logger

	if svc, ok := ctx.Service("security.redactor"); ok {
		if r, ok := svc.(*security.Redactor); ok {
			r.AddLiteral(e.config.BotToken)
		}
	}

	return nil
}

// Validate implements core.Validator.
func (e *Events) Validate() error {
	return e.config.validate()
}

// Wire connects the listener to the link store and the verifier trigger.
// Must be called before Start.
func (e *Events) Wire(links LinkFinder, trigger Nudger) {
	e.links = links
	e.trigger = trigger
}

// Start implements core.Starter.
func (e *Events) Start() error {
	if e.links == nil || e.trigger == nil {
		return fmt.Errorf("discord: events module not wired")
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.done = make(chan struct{})

	go e.run(ctx)

	e.logger.Info("discord gateway listener started")
	return nil
}

// Stop implements core.Stopper.
func (e *Events) Stop(ctx context.Context) error {
	if e.cancel == nil {
		return nil
	}
	e.cancel()

	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run reconnects forever until ctx is cancelled. Backoff doubles per failed
// session and resets once a session gets past IDENTIFY.
func (e *Events) run(ctx context.Context) {
	defer close(e.done)

	backoff := initialReconnectBackoff
	for {
		err := e.session(ctx, func() { backoff = initialReconnectBackoff })
		if ctx.Err() != nil {
			return
		}

		e.logger.Warn("discord gateway session ended",
			"error", err,
			"retry_in", backoff,
		)

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxReconnectBackoff {
			backoff = maxReconnectBackoff
		}
	}
}

// session runs a single gateway connection: HELLO, IDENTIFY, then dispatch
// and heartbeat handling until the connection breaks.
func (e *Events) session(ctx context.Context, onIdentified func()) error {
	conn, _, err := websocket.Dial(ctx, e.config.GatewayURL, nil)
	if err != nil {
		return fmt.Errorf("discord: dial gateway: %w", err)
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "session ended") }()

	conn.SetReadLimit(gatewayReadLimit)

	// HELLO arrives first and carries the heartbeat interval.
	env, err := readEnvelope(ctx, conn)
	if err != nil {
		return fmt.Errorf("discord: read hello: %w", err)
	}
	if env.Op != opHello {
		return fmt.Errorf("discord: expected hello, got op %d", env.Op)
	}

	var hello struct {
		HeartbeatInterval int64 `json:"heartbeat_interval"`
	}
	if err := json.Unmarshal(env.D, &hello); err != nil {
		return fmt.Errorf("discord: decode hello: %w", err)
	}
	if hello.HeartbeatInterval <= 0 {
		return fmt.Errorf("discord: hello carried no heartbeat interval")
	}

	if err := e.identify(ctx, conn); err != nil {
		return err
	}
	onIdentified()

	e.logger.Info("discord gateway connected",
		"heartbeat_interval_ms", hello.HeartbeatInterval,
	)

	var seq atomic.Int64

	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	go e.heartbeatLoop(hbCtx, conn, time.Duration(hello.HeartbeatInterval)*time.Millisecond, &seq)

	for {
		env, err := readEnvelope(ctx, conn)
		if err != nil {
			return err
		}

		switch env.Op {
		case opDispatch:
			if env.S != 0 {
				seq.Store(env.S)
			}
			e.handleDispatch(ctx, env)
		case opHeartbeat:
			// The gateway may request an immediate beat.
			if err := writeEnvelope(ctx, conn, gatewayEnvelope{Op: opHeartbeat, D: heartbeatPayload(&seq)}); err != nil {
				return fmt.Errorf("discord: send requested heartbeat: %w", err)
			}
		case opReconnect, opInvalidSession:
			return fmt.Errorf("discord: gateway requested reconnect (op %d)", env.Op)
		case opHeartbeatACK:
			// Ignored. A dead connection surfaces as a read error.
		}
	}
}

func (e *Events) identify(ctx context.Context, conn *websocket.Conn) error {
	d, err := json.Marshal(identifyData{
		Token:   e.config.BotToken,
		Intents: intentGuildMembers,
		Properties: identifyProperties{
			OS:      "linux",
			Browser: "bouncer",
			Device:  "bouncer",
		},
	})
	if err != nil {
		return fmt.Errorf("discord: encode identify: %w", err)
	}

	if err := writeEnvelope(ctx, conn, gatewayEnvelope{Op: opIdentify, D: d}); err != nil {
		return fmt.Errorf("discord: send identify: %w", err)
	}
	return nil
}

func (e *Events) heartbeatLoop(ctx context.Context, conn *websocket.Conn, interval time.Duration, seq *atomic.Int64) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := writeEnvelope(ctx, conn, gatewayEnvelope{Op: opHeartbeat, D: heartbeatPayload(seq)}); err != nil {
				// The read loop observes the broken connection.
				return
			}
		}
	}
}

// handleDispatch nudges the verifier when a member event concerns a linked
// user. Unknown users and unrelated dispatch types are ignored.
func (e *Events) handleDispatch(ctx context.Context, env gatewayEnvelope) {
	switch env.T {
	case eventGuildMemberUpdate, eventGuildMemberRemove:
	default:
		return
	}

	var ev memberEvent
	if err := json.Unmarshal(env.D, &ev); err != nil {
		e.logger.Warn("discord: undecodable member event", "type", env.T, "error", err)
		return
	}

	userID, err := parseSnowflake(ev.User.ID)
	if err != nil {
		e.logger.Warn("discord: member event without user id", "type", env.T, "error", err)
		return
	}

	if _, err := e.links.LinkByDiscordID(ctx, userID); err != nil {
		if !errors.Is(err, link.ErrNotFound) {
			e.logger.Warn("discord: link lookup failed", "discord_id", userID, "error", err)
		}
		return
	}

	e.logger.Debug("member change for linked user",
		"event", env.T,
		"discord_id", userID,
	)
	e.trigger.Nudge()
}

// gatewayEnvelope is the frame shape shared by all gateway messages.
type gatewayEnvelope struct {
	Op int             `json:"op"`
	T  string          `json:"t,omitempty"`
	S  int64           `json:"s,omitempty"`
	D  json.RawMessage `json:"d,omitempty"`
}

type identifyData struct {
	Token      string             `json:"token"`
	Intents    int                `json:"intents"`
	Properties identifyProperties `json:"properties"`
}

type identifyProperties struct {
	OS      string `json:"os"`
	Browser string `json:"browser"`
	Device  string `json:"device"`
}

// memberEvent is the subset of GUILD_MEMBER_* dispatch payloads the
// listener reads.
type memberEvent struct {
	GuildID string `json:"guild_id"`
	User    struct {
		ID string `json:"id"`
	} `json:"user"`
}

func heartbeatPayload(seq *atomic.Int64) json.RawMessage {
	n := seq.Load()
	if n == 0 {
		return json.RawMessage("null")
	}
	return json.RawMessage(strconv.FormatInt(n, 10))
}

func readEnvelope(ctx context.Context, conn *websocket.Conn) (gatewayEnvelope, error) {
	_, data, err := conn.Read(ctx)
	if err != nil {
		return gatewayEnvelope{}, err
	}

	var env gatewayEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return gatewayEnvelope{}, fmt.Errorf("discord: decode gateway frame: %w", err)
	}
	return env, nil
}

func writeEnvelope(ctx context.Context, conn *websocket.Conn, env gatewayEnvelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("discord: encode gateway frame: %w", err)
	}
	return conn.Write(ctx, websocket.MessageText, data)
}
