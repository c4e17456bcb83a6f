package bot

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"spindrift/pkg/commands"
	"spindrift/pkg/metrics"
	"spindrift/pkg/reply"
)

// HandleUpdate dispatches one update on its own goroutine. Handlers keep
// running when ctx is canceled; they are bounded by the handler timeout.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	b.inflight.Add(1)
	go func() {
		defer b.inflight.Done()
		defer func() {
			if r := recover(); r != nil {
				b.log.Error("Update handler panicked",
					zap.Int("update_id", update.UpdateID),
					zap.Any("panic", r),
					zap.Stack("stack"))
			}
		}()

		hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.timeout)
		defer cancel()
		b.dispatch(hctx, update)
	}()
}

// Wait blocks until in-flight handlers finish or ctx is done.
func (b *Bot) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		b.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Bot) dispatch(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	default:
		metrics.IncUpdate("ignored")
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil || msg.Chat == nil {
		metrics.IncUpdate("ignored")
		return
	}
	if !b.transport.IsAllowed(msg.From.ID, msg.Chat.ID, msg.From.UserName) {
		metrics.IncUpdate("ignored")
		b.log.Warn("Unauthorized access attempt",
			zap.Int64("user_id", msg.From.ID),
			zap.String("username", msg.From.UserName),
			zap.Int64("chat_id", msg.Chat.ID))
		return
	}

	req := commands.Request{
		UserID:    msg.From.ID,
		ChatID:    msg.Chat.ID,
		MessageID: msg.MessageID,
		Username:  msg.From.UserName,
	}

	if len(msg.Photo) > 0 {
		metrics.IncUpdate("photo")
		b.handlePhoto(ctx, req, msg.Photo)
		return
	}

	name, args := b.registry.Parse(msg.Text)
	if name == "" {
		metrics.IncUpdate("ignored")
		return
	}
	cmd, exists := b.registry.Get(name)
	if !exists {
		metrics.IncUpdate("ignored")
		b.log.Debug("Unknown command", zap.String("command", name))
		return
	}

	metrics.IncUpdate("command")
	req.Command = cmd.Name
	req.Args = args
	b.runCommand(ctx, cmd, req)
}

func (b *Bot) runCommand(ctx context.Context, cmd *commands.Command, req commands.Request) {
	b.log.Info("Executing command",
		zap.String("command", cmd.Name),
		zap.Int64("user_id", req.UserID))

	res, err := cmd.Handler(ctx, req)
	metrics.IncCommand(cmd.Name, err)
	if err != nil {
		b.log.Error("Command execution failed",
			zap.String("command", cmd.Name),
			zap.Int64("user_id", req.UserID),
			zap.Error(err))
		b.replyFailure(ctx, req)
		return
	}

	labels := b.Labels()
	deliveries, err := reply.Composer{Prompt: labels.ButtonPrompt}.Compose(res, req.MessageID)
	if err != nil {
		b.log.Error("Command returned an unusable reply",
			zap.String("command", cmd.Name),
			zap.Error(err))
		b.replyFailure(ctx, req)
		return
	}

	for _, d := range deliveries {
		if _, err := b.transport.Deliver(ctx, req.ChatID, d); err != nil {
			b.log.Error("Failed to send command response",
				zap.String("command", cmd.Name),
				zap.Stringer("kind", d.Kind),
				zap.Error(err))
			return
		}
	}
}

func (b *Bot) replyFailure(ctx context.Context, req commands.Request) {
	text := b.Labels().CommandFailed
	if _, err := b.transport.SendText(ctx, req.ChatID, text, req.MessageID, nil); err != nil {
		b.log.Warn("Failed to report command failure", zap.Error(err))
	}
}

func (b *Bot) handlePhoto(ctx context.Context, req commands.Request, photos []tgbotapi.PhotoSize) {
	h := b.registry.PhotoHandler()
	if h == nil {
		b.log.Debug("No photo handler registered")
		return
	}

	img, err := b.transport.DownloadImage(ctx, photos)
	if err != nil {
		b.log.Error("Failed to download photo",
			zap.Int64("user_id", req.UserID),
			zap.Error(err))
		return
	}

	err = h(ctx, req, img)
	metrics.IncCommand("photo", err)
	if err != nil {
		b.log.Error("Photo handler failed",
			zap.Int64("user_id", req.UserID),
			zap.Error(err))
	}
}

func (b *Bot) handleCallback(ctx context.Context, query *tgbotapi.CallbackQuery) {
	metrics.IncUpdate("callback")

	var (
		userID, chatID int64
		username       string
	)
	if query.From != nil {
		userID, username = query.From.ID, query.From.UserName
	}
	if query.Message != nil && query.Message.Chat != nil {
		chatID = query.Message.Chat.ID
	}
	// A press with no sender only passes when no allow-list is set.
	if !b.transport.IsAllowed(userID, chatID, username) {
		b.log.Warn("Unauthorized callback",
			zap.Int64("user_id", userID),
			zap.Int64("chat_id", chatID))
		return
	}

	err := b.routeCallback(ctx, query)
	metrics.IncCallback(err)
	if err != nil {
		b.log.Warn("Failed to handle button press",
			zap.String("data", query.Data),
			zap.Error(err))
	}

	if err := b.transport.AnswerCallback(ctx, query.ID, ""); err != nil {
		b.log.Debug("Failed to answer callback", zap.Error(err))
	}
}

// routeCallback replaces the keyboard prompt with the confirmation.
func (b *Bot) routeCallback(ctx context.Context, query *tgbotapi.CallbackQuery) error {
	router := reply.Router{Confirmation: b.Labels().ButtonChosen}
	choice, text, err := router.Route(query.Data)
	if err != nil {
		return err
	}
	if query.Message == nil || query.Message.Chat == nil {
		return fmt.Errorf("callback for message %d carries no prompt message", choice.MessageID)
	}

	b.log.Debug("Button pressed",
		zap.String("label", choice.Label),
		zap.Int("origin_message_id", choice.MessageID))

	return b.transport.EditText(ctx, query.Message.Chat.ID, query.Message.MessageID, text)
}
