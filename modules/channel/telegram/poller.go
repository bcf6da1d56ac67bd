package telegram

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

const (
	maxConsecutivePollingErrors = 5
	errorPauseDuration          = 30 * time.Second
)

// Poller long-polls the Bot API and answers /start in private chats with
// the sender's personal account-link URL.
type Poller struct {
	client   *Client
	logger   *slog.Logger
	config   Config
	stopCh   chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewPoller creates a new Poller.
func NewPoller(client *Client, logger *slog.Logger, config Config) *Poller {
	return &Poller{
		client: client,
		logger: logger,
		config: config,
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start launches the polling loop in a goroutine.
func (p *Poller) Start() {
	go p.loop()
}

// Stop signals the polling loop to stop and waits for it to finish.
// It is safe to call Stop multiple times.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	<-p.done
}

// loop runs the long-polling loop until Stop() is called.
func (p *Poller) loop() {
	defer close(p.done)

	var offset int
	var consecutiveErrors int

	for {
		select {
		case <-p.stopCh:
			return
		default:
		}

		updates, err := p.client.GetUpdates(p.ctx(), GetUpdatesRequest{
			Offset:         offset,
			Timeout:        p.config.PollingTimeout,
			AllowedUpdates: p.config.AllowedUpdates,
		})
		if err != nil {
			consecutiveErrors++
			p.logger.Error("polling getUpdates failed",
				"error", err,
				"consecutive_errors", consecutiveErrors,
			)

			if consecutiveErrors >= maxConsecutivePollingErrors {
				p.logger.Warn("polling paused after consecutive errors",
					"pause", errorPauseDuration,
				)
				select {
				case <-p.stopCh:
					return
				case <-time.After(errorPauseDuration):
				}
				consecutiveErrors = 0
			}
			continue
		}

		consecutiveErrors = 0

		for _, update := range updates {
			offset = update.UpdateID + 1
			p.handleUpdate(&update)
		}
	}
}

// ctx returns a context that is cancelled when the poller stops.
func (p *Poller) ctx() contextWrapper {
	return contextWrapper{stopCh: p.stopCh}
}

// handleUpdate answers /start commands sent to the bot in private chats.
// Everything else is ignored.
func (p *Poller) handleUpdate(update *Update) {
	msg := update.Message
	if msg == nil || msg.From == nil || msg.From.IsBot {
		return
	}
	if msg.Chat.Type != "private" {
		return
	}
	if !isStartCommand(msg.Text) {
		return
	}

	linkURL := fmt.Sprintf("%s/oauth/start?telegram_id=%d", p.config.LinkBaseURL, msg.From.ID)

	if _, err := p.client.SendMessage(p.ctx(), SendMessageRequest{
		ChatID:                msg.Chat.ID,
		Text:                  startReply(msg.From.FirstName, linkURL),
		ParseMode:             "HTML",
		DisableWebPagePreview: true,
	}); err != nil {
		p.logger.Error("failed to answer /start",
			"chat_id", msg.Chat.ID,
			"error", err,
		)
		return
	}

	p.logger.Info("sent account-link url", "telegram_id", msg.From.ID)
}

// isStartCommand reports whether text is the /start command, with or
// without a @botname suffix or deep-link payload.
func isStartCommand(text string) bool {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/start") {
		return false
	}
	rest := text[len("/start"):]
	if rest == "" {
		return true
	}
	return rest[0] == ' ' || rest[0] == '@'
}

// contextWrapper adapts a stop channel to a context.Context for the HTTP client.
type contextWrapper struct {
	stopCh <-chan struct{}
}

func (c contextWrapper) Deadline() (time.Time, bool) { return time.Time{}, false }
func (c contextWrapper) Done() <-chan struct{}       { return c.stopCh }

func (c contextWrapper) Err() error {
	select {
	case <-c.stopCh:
		return errPollerStopped
	default:
		return nil
	}
}

func (c contextWrapper) Value(any) any { return nil }

var errPollerStopped = pollerStoppedError{}

type pollerStoppedError struct{}

func (pollerStoppedError) Error() string { return "poller stopped" }
