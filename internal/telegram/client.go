// Package telegram adapts the Bot API to the pipeline's Gate and Messenger.
package telegram

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	joinText   = "🔒 You haven't joined our channel yet. Please join first, then send the link again."
	joinButton = "🔗 Join Channel"
)

// Client serves one bot token. Methods are safe for concurrent use.
type Client struct {
	bot        *tgbotapi.BotAPI
	channel    tgbotapi.ChatConfigWithUser // gate channel, UserID filled per call
	channelURL string
	attempts   uint
}

// New wraps bot. channel is "@username" or a numeric chat id; sendAttempts
// bounds video uploads retried after flood-control (429) answers.
func New(bot *tgbotapi.BotAPI, channel, channelURL string, sendAttempts int) *Client {
	var cc tgbotapi.ChatConfigWithUser
	if id, err := strconv.ParseInt(channel, 10, 64); err == nil {
		cc.ChatID = id
	} else {
		cc.SuperGroupUsername = channel
	}
	if sendAttempts < 1 {
		sendAttempts = 1
	}
	return &Client{bot: bot, channel: cc, channelURL: channelURL, attempts: uint(sendAttempts)}
}

func (c *Client) API() *tgbotapi.BotAPI { return c.bot }

// IsMember reports whether userID is a member, administrator or creator of
// the gate channel.
func (c *Client) IsMember(ctx context.Context, userID int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	cfg := c.channel
	cfg.UserID = userID
	m, err := c.bot.GetChatMember(tgbotapi.GetChatMemberConfig{ChatConfigWithUser: cfg})
	if err != nil {
		return false, err
	}
	switch m.Status {
	case "member", "creator", "administrator":
		return true, nil
	default:
		return false, nil
	}
}

func (c *Client) SendUploading(_ context.Context, chatID int64) error {
	_, err := c.bot.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatUploadVideo))
	return err
}

func (c *Client) SendText(_ context.Context, chatID int64, text string) (int, error) {
	m, err := c.bot.Send(tgbotapi.NewMessage(chatID, text))
	if err != nil {
		return 0, err
	}
	return m.MessageID, nil
}

func (c *Client) EditText(_ context.Context, chatID int64, messageID int, text string) error {
	_, err := c.bot.Send(tgbotapi.NewEditMessageText(chatID, messageID, text))
	return err
}

// SendVideo uploads path in a single sendVideo call. Only 429 answers are
// retried: Telegram rejected those before accepting the upload, so a retry
// cannot produce a duplicate.
func (c *Client) SendVideo(ctx context.Context, chatID int64, path, caption string) error {
	v := tgbotapi.NewVideo(chatID, tgbotapi.FilePath(path))
	v.Caption = caption
	v.SupportsStreaming = true

	return retry.Do(
		func() error {
			_, err := c.bot.Send(v)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.RetryIf(isFloodWait),
		retry.DelayType(floodDelay),
		retry.MaxDelay(2*time.Minute),
		retry.LastErrorOnly(true),
	)
}

func (c *Client) SendJoinPrompt(_ context.Context, chatID int64) error {
	msg := tgbotapi.NewMessage(chatID, joinText)
	if c.channelURL != "" {
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL(joinButton, c.channelURL)),
		)
	}
	_, err := c.bot.Send(msg)
	return err
}

func isFloodWait(err error) bool {
	var tgErr *tgbotapi.Error
	return errors.As(err, &tgErr) && (tgErr.Code == 429 || tgErr.RetryAfter > 0 ||
		strings.Contains(tgErr.Message, "Too Many Requests"))
}

func floodDelay(n uint, err error, cfg *retry.Config) time.Duration {
	var tgErr *tgbotapi.Error
	if errors.As(err, &tgErr) && tgErr.RetryAfter > 0 {
		return time.Duration(tgErr.RetryAfter) * time.Second
	}
	return retry.BackOffDelay(n, err, cfg)
}
