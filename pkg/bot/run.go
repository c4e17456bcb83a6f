package bot

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Resume starts receiving updates. Calling it while running is a no-op.
func (b *Bot) Resume(ctx context.Context) {
	b.run.Lock()
	defer b.run.Unlock()

	if b.cancel != nil {
		return
	}

	pctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	b.cancel = cancel
	b.done = done

	go func() {
		defer close(done)
		if err := b.transport.Poll(pctx, func(u tgbotapi.Update) {
			b.HandleUpdate(pctx, u)
		}); err != nil {
			b.log.Error("Polling stopped", zap.Error(err))
		}
	}()
	b.log.Info("Receiving updates")
}

// Stop stops receiving updates and waits for the poll loop to exit.
// Handlers already running are not interrupted.
func (b *Bot) Stop() {
	b.run.Lock()
	defer b.run.Unlock()

	if b.cancel == nil {
		return
	}
	b.cancel()
	<-b.done
	b.cancel = nil
	b.done = nil
	b.log.Info("Stopped receiving updates")
}

// Running reports whether updates are being received.
func (b *Bot) Running() bool {
	b.run.Lock()
	defer b.run.Unlock()
	return b.cancel != nil
}
