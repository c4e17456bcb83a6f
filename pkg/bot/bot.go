// Package bot is the registration API: application code registers commands
// and a photo handler, and the bot dispatches Telegram updates to them.
package bot

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"spindrift/pkg/channels/telegram"
	"spindrift/pkg/commands"
	"spindrift/pkg/config"
	"spindrift/pkg/logger"
	"spindrift/pkg/reply"
	"spindrift/pkg/settings"
)

const defaultHandlerTimeout = 60 * time.Second

// Transport is what the bot needs from the messaging platform.
// *telegram.Client implements it.
type Transport interface {
	Deliver(ctx context.Context, chatID int64, d reply.Delivery) (int, error)
	SendText(ctx context.Context, chatID int64, text string, replyTo int, keyboard *tgbotapi.InlineKeyboardMarkup) (int, error)
	EditText(ctx context.Context, chatID int64, messageID int, text string) error
	AnswerCallback(ctx context.Context, queryID, text string) error
	DownloadImage(ctx context.Context, photos []tgbotapi.PhotoSize) (image.Image, error)
	SyncCommands(ctx context.Context, cmds []telegram.CommandInfo) error
	Poll(ctx context.Context, fn func(tgbotapi.Update)) error
	IsAllowed(userID, chatID int64, username string) bool
}

var _ Transport = (*telegram.Client)(nil)

// ConfigHandler computes a reply from the caller's settings.
type ConfigHandler func(ctx context.Context, cfg settings.UserConfig) (reply.Result, error)

// PhotoHandler consumes an inbound photo together with the sender's settings.
type PhotoHandler func(ctx context.Context, img image.Image, cfg settings.UserConfig) error

// Option configures a Bot.
type Option func(*Bot)

// WithHandlerTimeout bounds each update's handling. Zero keeps the default.
func WithHandlerTimeout(d time.Duration) Option {
	return func(b *Bot) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// Bot dispatches updates to registered commands.
type Bot struct {
	transport Transport
	store     settings.Store
	registry  *commands.Registry
	log       *logger.Logger
	timeout   time.Duration

	mu        sync.RWMutex
	labels    config.LabelsConfig
	startText string
	helpText  string
	custom    map[string]bool

	run      sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	inflight sync.WaitGroup
}

// New creates a bot with the built-in start, help, set and params commands.
func New(transport Transport, store settings.Store, labels config.LabelsConfig, log *logger.Logger, opts ...Option) (*Bot, error) {
	if transport == nil {
		return nil, fmt.Errorf("transport is required")
	}
	if store == nil {
		return nil, fmt.Errorf("settings store is required")
	}
	if log == nil {
		log = logger.NewNop()
	}

	b := &Bot{
		transport: transport,
		store:     store,
		registry:  commands.NewRegistry(),
		log:       log,
		timeout:   defaultHandlerTimeout,
		labels:    labels,
		startText: labels.Start,
		helpText:  labels.Help,
		custom:    make(map[string]bool),
	}
	for _, opt := range opts {
		opt(b)
	}

	for _, cmd := range commands.Builtins(store, labels) {
		if err := b.registry.Register(cmd); err != nil {
			return nil, fmt.Errorf("failed to register %s: %w", cmd.Name, err)
		}
	}
	return b, nil
}

// RegisterCommand adds or replaces a command. The handler receives the
// caller's settings; its result is composed and delivered as a reply.
func (b *Bot) RegisterCommand(name string, h ConfigHandler) error {
	if h == nil {
		return fmt.Errorf("%s: %w", name, commands.ErrNilHandler)
	}

	normalized := commands.Normalize(name)
	err := b.registry.Register(&commands.Command{
		Name:    normalized,
		Usage:   "/" + normalized,
		Handler: b.withConfig(h),
	})
	if err != nil {
		return err
	}

	b.mu.Lock()
	b.custom[normalized] = true
	b.mu.Unlock()

	b.log.Debug("Registered command", zap.String("command", normalized))
	return nil
}

func (b *Bot) withConfig(h ConfigHandler) commands.Handler {
	return func(ctx context.Context, req commands.Request) (reply.Result, error) {
		cfg, err := b.store.Get(ctx, req.UserID)
		if err != nil {
			return reply.Result{}, fmt.Errorf("load settings: %w", err)
		}
		return h(ctx, cfg)
	}
}

// RegisterPhotoHandler installs the photo handler. Only the last one is kept.
func (b *Bot) RegisterPhotoHandler(h PhotoHandler) {
	if h == nil {
		b.registry.SetPhotoHandler(nil)
		return
	}
	b.registry.SetPhotoHandler(func(ctx context.Context, req commands.Request, img image.Image) error {
		cfg, err := b.store.Get(ctx, req.UserID)
		if err != nil {
			return fmt.Errorf("load settings: %w", err)
		}
		return h(ctx, img, cfg)
	})
}

// Commands returns the command names in registration order.
func (b *Bot) Commands() []string {
	return b.registry.Names()
}

// HasCommand reports whether name is registered.
func (b *Bot) HasCommand(name string) bool {
	return b.registry.Has(name)
}

// CommandWithName looks up a command.
func (b *Bot) CommandWithName(name string) (*commands.Command, bool) {
	return b.registry.Get(name)
}

// SetStartMessage replaces the /start reply.
func (b *Bot) SetStartMessage(text string) error {
	b.mu.Lock()
	b.startText = text
	b.mu.Unlock()
	return b.setTextCommand("start", "Shows the starting dialog", text)
}

// StartMessage returns the current /start reply.
func (b *Bot) StartMessage() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.startText
}

// SetHelpMessage replaces the /help reply.
func (b *Bot) SetHelpMessage(text string) error {
	b.mu.Lock()
	b.helpText = text
	b.mu.Unlock()
	return b.setTextCommand("help", "Shows the available commands", text)
}

// HelpMessage returns the current /help reply.
func (b *Bot) HelpMessage() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.helpText
}

func (b *Bot) setTextCommand(name, description, text string) error {
	return b.registry.Register(&commands.Command{
		Name:        name,
		Description: description,
		Usage:       "/" + name,
		Handler:     commands.TextHandler(text),
	})
}

// ApplyLabels switches to new labels. Built-in commands that application
// code replaced are left alone. Start and help texts follow the labels only
// when the label itself changed.
func (b *Bot) ApplyLabels(labels config.LabelsConfig) error {
	b.mu.Lock()
	prev := b.labels
	b.labels = labels
	custom := make(map[string]bool, len(b.custom))
	for k, v := range b.custom {
		custom[k] = v
	}
	b.mu.Unlock()

	if labels.Start != prev.Start && !custom["start"] {
		if err := b.SetStartMessage(labels.Start); err != nil {
			return err
		}
	}
	if labels.Help != prev.Help && !custom["help"] {
		if err := b.SetHelpMessage(labels.Help); err != nil {
			return err
		}
	}

	for _, cmd := range commands.Builtins(b.store, labels) {
		if cmd.Name != "set" && cmd.Name != "params" {
			continue
		}
		if custom[cmd.Name] {
			continue
		}
		if err := b.registry.Register(cmd); err != nil {
			return err
		}
	}

	b.log.Info("Labels applied")
	return nil
}

// Labels returns the labels in use.
func (b *Bot) Labels() config.LabelsConfig {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.labels
}

// SyncCommands publishes the registered commands as the bot's menu.
func (b *Bot) SyncCommands(ctx context.Context) error {
	cmds := b.registry.List()
	infos := make([]telegram.CommandInfo, 0, len(cmds))
	for _, cmd := range cmds {
		infos = append(infos, telegram.CommandInfo{
			Name:        cmd.Name,
			Description: cmd.Description,
			Usage:       cmd.Usage,
		})
	}
	return b.transport.SyncCommands(ctx, infos)
}
