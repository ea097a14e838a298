package poster

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/url"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const commonsWikiURL = "https://commons.wikimedia.org/wiki/"

// ErrNoSender is returned when posting for real without a Telegram sender.
var ErrNoSender = errors.New("no telegram sender configured")

// Sender sends a request to Telegram. *tgbotapi.BotAPI satisfies it.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Photo is an image ready to be uploaded.
type Photo struct {
	Name string
	URL  string
	Data []byte
}

// Telegram publishes photos with a caption to one chat or channel.
type Telegram struct {
	sender      Sender
	chatID      int64
	dryRun      bool
	attribution bool
}

// Option configures a Telegram poster.
type Option func(*Telegram)

// WithDryRun logs posts instead of sending them.
func WithDryRun(dryRun bool) Option {
	return func(t *Telegram) {
		t.dryRun = dryRun
	}
}

// WithAttribution appends a link to the image's Commons page to the caption.
func WithAttribution(enabled bool) Option {
	return func(t *Telegram) {
		t.attribution = enabled
	}
}

// NewTelegram creates a poster. sender may be nil in dry-run mode.
func NewTelegram(sender Sender, chatID int64, opts ...Option) *Telegram {
	t := &Telegram{
		sender: sender,
		chatID: chatID,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Post uploads photo with caption and returns the Telegram message ID.
// In dry-run mode nothing is sent and the returned ID is 0.
func (t *Telegram) Post(ctx context.Context, photo *Photo, caption string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	text := FormatCaption(caption, photo.Name, t.attribution)

	if t.dryRun {
		slog.Info("dry run: skipping post", "caption", text, "image", photo.Name, "bytes", len(photo.Data))
		return 0, nil
	}
	if t.sender == nil {
		return 0, ErrNoSender
	}

	msg := tgbotapi.NewPhoto(t.chatID, tgbotapi.FileBytes{
		Name:  fileName(photo.Name),
		Bytes: photo.Data,
	})
	msg.Caption = text
	msg.ParseMode = tgbotapi.ModeHTML

	sent, err := t.sender.Send(msg)
	if err != nil {
		return 0, fmt.Errorf("send photo: %w", err)
	}
	return int64(sent.MessageID), nil
}

// FormatCaption escapes caption for Telegram HTML and optionally links the
// image's Commons page.
func FormatCaption(caption, imageName string, attribution bool) string {
	text := html.EscapeString(caption)
	if !attribution || imageName == "" {
		return text
	}

	page := commonsWikiURL + url.PathEscape(strings.ReplaceAll(imageName, " ", "_"))
	return fmt.Sprintf("%s\n\n<a href=\"%s\">%s</a>", text, html.EscapeString(page), html.EscapeString(imageName))
}

// fileName turns a Commons title like "File:Foo bar.jpg" into an upload name.
func fileName(name string) string {
	name = strings.TrimPrefix(name, "File:")
	name = strings.ReplaceAll(name, " ", "_")
	if name == "" {
		return "image"
	}
	return name
}
