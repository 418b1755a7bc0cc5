// Package telegram publishes formatted posts to a Telegram chat through
// per-persona bots.
package telegram

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	. "github.com/lovelive-bluebird/bluebird/utils/log"
)

const defaultTimeout = 15 * time.Second

// Sink sends messages to one chat. The bot credential is chosen per call so
// that every persona posts as itself.
type Sink struct {
	chatID   int64
	channel  string
	endpoint string
	client   *http.Client
}

type Option func(*Sink)

// WithEndpoint overrides the Bot API endpoint format, see tgbotapi.APIEndpoint.
func WithEndpoint(endpoint string) Option {
	return func(s *Sink) { s.endpoint = endpoint }
}

func WithHttpClient(client *http.Client) Option {
	return func(s *Sink) { s.client = client }
}

// NewSink accepts a numeric chat id or an @channel username.
func NewSink(chat string, opts ...Option) (*Sink, error) {
	s := &Sink{endpoint: tgbotapi.APIEndpoint, client: &http.Client{Timeout: defaultTimeout}}
	chat = strings.TrimSpace(chat)
	if id, err := strconv.ParseInt(chat, 10, 64); err == nil {
		s.chatID = id
	} else if strings.HasPrefix(chat, "@") && len(chat) > 1 {
		s.channel = chat
	} else {
		return nil, errors.Errorf("invalid telegram chat %q", chat)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ctxClient binds outgoing Bot API requests to the caller's context.
type ctxClient struct {
	ctx   context.Context
	inner *http.Client
}

func (c ctxClient) Do(req *http.Request) (*http.Response, error) {
	return c.inner.Do(req.WithContext(c.ctx))
}

func (s *Sink) bot(ctx context.Context, credential string) *tgbotapi.BotAPI {
	bot := &tgbotapi.BotAPI{
		Token:  credential,
		Client: ctxClient{ctx: ctx, inner: s.client},
		Buffer: 100,
	}
	bot.SetAPIEndpoint(s.endpoint)
	return bot
}

func (s *Sink) newMessage(text string) tgbotapi.MessageConfig {
	var msg tgbotapi.MessageConfig
	if s.channel != "" {
		msg = tgbotapi.NewMessageToChannel(s.channel, text)
	} else {
		msg = tgbotapi.NewMessage(s.chatID, text)
	}
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	return msg
}

// Publish sends text as HTML, optionally as a reply, and returns the new
// message id.
func (s *Sink) Publish(ctx context.Context, credential string, text string, replyTo *int64) (int64, error) {
	if credential == "" {
		return 0, errors.New("telegram: empty bot credential")
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	msg := s.newMessage(text)
	if replyTo != nil {
		msg.ReplyToMessageID = int(*replyTo)
	}

	sent, err := s.bot(ctx, credential).Send(msg)
	if err != nil {
		return 0, errors.Wrap(err, "telegram send message")
	}
	Log.WithFields(logrus.Fields{
		"message_id": sent.MessageID,
		"is_reply":   replyTo != nil,
	}).Info("message published to telegram")
	return int64(sent.MessageID), nil
}
