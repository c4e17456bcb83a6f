// Package telegram is the transport between the bot and the Telegram Bot API.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"image"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"spindrift/pkg/config"
	"spindrift/pkg/logger"
	"spindrift/pkg/metrics"
	"spindrift/pkg/reply"
)

const (
	// Keep HTTP timeout longer than long-poll timeout to avoid periodic forced reconnects.
	httpTimeout = 75 * time.Second
	pollBackoff = 3 * time.Second
	maxCommands = 100
)

// ErrNoPhoto is returned by DownloadImage for a message without photo sizes.
var ErrNoPhoto = errors.New("message has no photo")

// Photo is either a local file or a remote URL.
type Photo struct {
	Path string
	URL  string
}

// CommandInfo is what SyncCommands publishes for one command.
type CommandInfo struct {
	Name        string
	Description string
	Usage       string
}

// Client wraps a BotAPI with the operations the bot needs.
type Client struct {
	api        BotAPI
	log        *logger.Logger
	httpClient *http.Client
	username   string

	mu          sync.Mutex
	allowFrom   []string
	pollTimeout int
	offset      int
}

// NewClient wraps api. Downloads use httpClient, or a default client if nil.
func NewClient(api BotAPI, cfg config.TelegramConfig, httpClient *http.Client, log *logger.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: httpTimeout}
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Client{
		api:         api,
		log:         log,
		httpClient:  httpClient,
		allowFrom:   append([]string(nil), cfg.AllowFrom...),
		pollTimeout: cfg.PollTimeout,
	}
}

// Dial connects to Telegram with the configured token and proxy.
func Dial(cfg config.TelegramConfig, log *logger.Logger) (*Client, error) {
	if log == nil {
		log = logger.NewNop()
	}

	httpClient := &http.Client{Timeout: httpTimeout}
	if cfg.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("parsing telegram proxy: %w", err)
		}
		httpClient.Transport = &http.Transport{
			Proxy: http.ProxyURL(proxyURL),
		}
		log.Info("Telegram proxy enabled", zap.String("proxy", proxyURL.Redacted()))
	}

	api, err := tgbotapi.NewBotAPIWithClient(cfg.Token, tgbotapi.APIEndpoint, httpClient)
	if err != nil {
		return nil, fmt.Errorf("creating telegram bot: %w", err)
	}
	api.Debug = false

	log.Info("Telegram bot connected", zap.String("username", api.Self.UserName))

	c := NewClient(api, cfg, httpClient, log)
	c.username = api.Self.UserName
	return c, nil
}

// Username is the bot's handle, empty for clients built with NewClient.
func (c *Client) Username() string {
	return c.username
}

// SetAllowFrom replaces the allow-list.
func (c *Client) SetAllowFrom(allow []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.allowFrom = append([]string(nil), allow...)
}

// SendText sends text, optionally as a reply and with an inline keyboard.
// It returns the id of the sent message.
func (c *Client) SendText(ctx context.Context, chatID int64, text string, replyTo int, keyboard *tgbotapi.InlineKeyboardMarkup) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyToMessageID = replyTo
	if keyboard != nil {
		msg.ReplyMarkup = *keyboard
	}

	sent, err := c.api.Send(msg)
	if err != nil {
		return 0, fmt.Errorf("sending telegram message: %w", err)
	}
	return sent.MessageID, nil
}

// SendPhoto sends a local file or a URL.
func (c *Client) SendPhoto(ctx context.Context, chatID int64, photo Photo) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var file tgbotapi.RequestFileData
	switch {
	case photo.Path != "" && photo.URL != "":
		return 0, reply.ErrAmbiguousImage
	case photo.Path != "":
		file = tgbotapi.FilePath(photo.Path)
	case photo.URL != "":
		file = tgbotapi.FileURL(photo.URL)
	default:
		return 0, fmt.Errorf("photo has neither path nor URL")
	}

	sent, err := c.api.Send(tgbotapi.NewPhoto(chatID, file))
	if err != nil {
		return 0, fmt.Errorf("sending telegram photo: %w", err)
	}
	return sent.MessageID, nil
}

// EditText replaces the text of a sent message and drops its keyboard.
func (c *Client) EditText(ctx context.Context, chatID int64, messageID int, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := c.api.Send(tgbotapi.NewEditMessageText(chatID, messageID, text)); err != nil {
		return fmt.Errorf("editing telegram message %d: %w", messageID, err)
	}
	return nil
}

// AnswerCallback acknowledges a button press so the client stops its spinner.
func (c *Client) AnswerCallback(ctx context.Context, queryID, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := c.api.Request(tgbotapi.NewCallback(queryID, text)); err != nil {
		return fmt.Errorf("answering callback %s: %w", queryID, err)
	}
	return nil
}

// Deliver sends one composed delivery to chatID.
func (c *Client) Deliver(ctx context.Context, chatID int64, d reply.Delivery) (id int, err error) {
	defer func() { metrics.IncDelivery(d.Kind.String(), err) }()

	switch d.Kind {
	case reply.KindText:
		return c.SendText(ctx, chatID, d.Text, d.ReplyTo, nil)
	case reply.KindPhoto:
		return c.SendPhoto(ctx, chatID, Photo{Path: d.ImagePath, URL: d.ImageURL})
	case reply.KindPrompt:
		keyboard := Keyboard(d.Buttons)
		return c.SendText(ctx, chatID, d.Text, d.ReplyTo, &keyboard)
	default:
		return 0, fmt.Errorf("unknown delivery kind %d", d.Kind)
	}
}

// Keyboard lays the buttons out on a single row.
func Keyboard(buttons []reply.Button) tgbotapi.InlineKeyboardMarkup {
	row := make([]tgbotapi.InlineKeyboardButton, 0, len(buttons))
	for _, b := range buttons {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(b.Label, b.Data))
	}
	return tgbotapi.NewInlineKeyboardMarkup(row)
}

// SyncCommands publishes the command menu.
func (c *Client) SyncCommands(ctx context.Context, cmds []CommandInfo) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	telegramCmds := make([]tgbotapi.BotCommand, 0, len(cmds))
	seen := make(map[string]struct{})

	for _, cmd := range cmds {
		name := sanitizeCommandName(cmd.Name)
		if name == "" {
			continue
		}
		if _, exists := seen[name]; exists {
			continue
		}
		seen[name] = struct{}{}

		desc := strings.TrimSpace(cmd.Description)
		if desc == "" {
			desc = strings.TrimSpace(cmd.Usage)
		}
		if desc == "" {
			desc = "Command"
		}
		if len(desc) > 256 {
			desc = desc[:256]
		}

		telegramCmds = append(telegramCmds, tgbotapi.BotCommand{
			Command:     name,
			Description: desc,
		})
	}

	if len(telegramCmds) == 0 {
		return nil
	}
	if len(telegramCmds) > maxCommands {
		sort.Slice(telegramCmds, func(i, j int) bool {
			return telegramCmds[i].Command < telegramCmds[j].Command
		})
		telegramCmds = telegramCmds[:maxCommands]
	}

	if _, err := c.api.Request(tgbotapi.NewSetMyCommands(telegramCmds...)); err != nil {
		return fmt.Errorf("syncing telegram commands: %w", err)
	}
	c.log.Info("Synced Telegram slash commands", zap.Int("count", len(telegramCmds)))
	return nil
}

// sanitizeCommandName maps name onto Telegram's [a-z0-9_]{1,32}.
func sanitizeCommandName(name string) string {
	normalized := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "/"))

	var b strings.Builder
	lastUnderscore := false
	for _, r := range normalized {
		if b.Len() >= 32 {
			break
		}
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		case r == '-' || r == '_':
			if b.Len() > 0 && !lastUnderscore {
				b.WriteRune('_')
				lastUnderscore = true
			}
		}
	}
	return strings.Trim(b.String(), "_")
}

type pollResult struct {
	updates []tgbotapi.Update
	err     error
}

// Poll long-polls for updates and calls fn for each, in order. It returns
// when ctx is done. The offset survives across calls, so a later Poll
// resumes after the last update handed to fn.
func (c *Client) Poll(ctx context.Context, fn func(tgbotapi.Update)) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		c.mu.Lock()
		u := tgbotapi.NewUpdate(c.offset)
		u.Timeout = c.pollTimeout
		c.mu.Unlock()

		// GetUpdates cannot be canceled; run it aside so ctx wins.
		ch := make(chan pollResult, 1)
		go func() {
			updates, err := c.api.GetUpdates(u)
			ch <- pollResult{updates: updates, err: err}
		}()

		var res pollResult
		select {
		case <-ctx.Done():
			return nil
		case res = <-ch:
		}

		if res.err != nil {
			c.log.Warn("Failed to get updates, retrying", zap.Error(res.err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(pollBackoff):
			}
			continue
		}

		for _, update := range res.updates {
			c.mu.Lock()
			if update.UpdateID >= c.offset {
				c.offset = update.UpdateID + 1
			}
			c.mu.Unlock()
			fn(update)
		}
	}
}

// DownloadImage fetches and decodes the largest size of a photo message.
func (c *Client) DownloadImage(ctx context.Context, photos []tgbotapi.PhotoSize) (image.Image, error) {
	if len(photos) == 0 {
		return nil, ErrNoPhoto
	}
	largest := photos[len(photos)-1]
	for _, p := range photos {
		if p.Width*p.Height > largest.Width*largest.Height {
			largest = p
		}
	}

	data, err := c.downloadFile(ctx, largest.FileID)
	if err != nil {
		return nil, err
	}
	return DecodeImage(data)
}

func (c *Client) downloadFile(ctx context.Context, fileID string) ([]byte, error) {
	fileURL, err := c.api.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("resolving file URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building download request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("download failed with status %d", resp.StatusCode)
	}

	data, err := readLimited(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading file body: %w", err)
	}
	return data, nil
}

// IsAllowed checks if a user is allowed to use the bot. An empty
// allow-list allows everyone.
func (c *Client) IsAllowed(userID, chatID int64, username string) bool {
	c.mu.Lock()
	allow := c.allowFrom
	c.mu.Unlock()

	if len(allow) == 0 {
		return true
	}

	userIDStr := strconv.FormatInt(userID, 10)
	chatIDStr := strconv.FormatInt(chatID, 10)
	username = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(username)), "@")

	for _, allowed := range allow {
		normalized := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(allowed)), "@")
		if normalized == userIDStr || normalized == chatIDStr {
			return true
		}
		if username != "" && normalized == username {
			return true
		}
	}
	return false
}
