package bot

import (
	"context"
	"errors"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// DefaultPollTimeout is the long-poll timeout used when none is configured.
const DefaultPollTimeout = 60 * time.Second

// BotAPI is the subset of *tgbotapi.BotAPI the gateway uses.
type BotAPI interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	StopReceivingUpdates()
}

// Handler turns an inbound message into a reply.
type Handler interface {
	Handle(ctx context.Context, msg Message) Reply
}

// Gateway long-polls the Telegram Bot API and feeds text messages to a Handler.
// Messages are handled one at a time in arrival order.
type Gateway struct {
	api         BotAPI
	handler     Handler
	pollTimeout time.Duration
	logger      Logger
}

// NewGateway creates a gateway.
//
// Parameters:
//   - api: Telegram client
//   - handler: receives every non-empty text message
//   - pollTimeout: long-poll timeout (zero selects DefaultPollTimeout)
//
// Returns:
//   - *Gateway: ready to Run
func NewGateway(api BotAPI, handler Handler, pollTimeout time.Duration) *Gateway {
	if pollTimeout <= 0 {
		pollTimeout = DefaultPollTimeout
	}
	return &Gateway{
		api:         api,
		handler:     handler,
		pollTimeout: pollTimeout,
		logger:      noopLogger{},
	}
}

// SetLogger sets the logger.
func (g *Gateway) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	g.logger = logger
}

// Run receives updates until ctx is cancelled or the update channel closes.
//
// Returns:
//   - error: ctx.Err() on cancellation, nil if the channel closed
func (g *Gateway) Run(ctx context.Context) error {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = int(g.pollTimeout / time.Second)

	updates := g.api.GetUpdatesChan(cfg)
	defer g.api.StopReceivingUpdates()

	g.logger.Info("telegram gateway started", "poll_timeout", g.pollTimeout)

	for {
		select {
		case <-ctx.Done():
			g.logger.Info("telegram gateway stopping")
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			g.handleUpdate(ctx, update)
		}
	}
}

func (g *Gateway) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	m := update.Message
	if m == nil || m.From == nil || m.Chat == nil || m.Text == "" {
		return
	}

	reply := g.handler.Handle(ctx, Message{
		SenderID: m.From.ID,
		ChatID:   m.Chat.ID,
		Text:     m.Text,
	})
	if reply.Text == "" {
		return
	}

	if err := g.send(m.Chat.ID, reply); err != nil {
		g.logger.Error("sending reply failed", "chat", m.Chat.ID, "error", err)
	}
}

// send delivers reply, falling back to plain text when Markdown is rejected.
func (g *Gateway) send(chatID int64, reply Reply) error {
	out := tgbotapi.NewMessage(chatID, reply.Text)
	if !reply.Markdown {
		_, err := g.api.Send(out)
		return err
	}

	out.ParseMode = tgbotapi.ModeMarkdown
	_, err := g.api.Send(out)
	if err == nil {
		return nil
	}
	g.logger.Warn("markdown reply rejected, retrying as plain text", "chat", chatID, "error", err)

	out.ParseMode = ""
	if _, plainErr := g.api.Send(out); plainErr != nil {
		return errors.Join(err, plainErr)
	}
	return nil
}
