package log

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	telegramMaxMessageLength = 4000
	telegramTruncatedLength  = 3900
	truncationSuffix         = "...\n[message truncated due to length]"
	telegramQueueSize        = 100
)

// TelegramHook forwards ERROR and above to a Telegram chat so that operators
// get paged without watching the log stream. Alerts are sent by a single
// background goroutine; when its queue is full new alerts are dropped.
type TelegramHook struct {
	bot       *tgbotapi.BotAPI
	chatID    int64
	channel   string
	hostname  string
	formatter logrus.Formatter

	mu      sync.RWMutex
	closed  bool
	queue   chan string
	wg      sync.WaitGroup
	dropped int64
}

func NewTelegramHook(token, chatID string) (*TelegramHook, error) {
	return newTelegramHookWithEndpoint(token, chatID, tgbotapi.APIEndpoint, telegramQueueSize)
}

func newTelegramHookWithEndpoint(token, chatID, endpoint string, queueSize int) (*TelegramHook, error) {
	if token == "" {
		return nil, errors.Errorf("telegram hook requires a bot token")
	}
	hook := &TelegramHook{
		bot: &tgbotapi.BotAPI{
			Token:  token,
			Client: &http.Client{Timeout: 5 * time.Second},
			Buffer: 100,
		},
		formatter: &logrus.TextFormatter{DisableColors: true, FullTimestamp: true},
	}
	hook.bot.SetAPIEndpoint(endpoint)

	if id, err := strconv.ParseInt(chatID, 10, 64); err == nil {
		hook.chatID = id
	} else if strings.HasPrefix(chatID, "@") {
		hook.channel = chatID
	} else {
		return nil, errors.Errorf("invalid telegram chat id %q", chatID)
	}

	hook.hostname, _ = os.Hostname()
	if hook.hostname == "" {
		hook.hostname = "unknown-host"
	}

	hook.queue = make(chan string, queueSize)
	hook.wg.Add(1)
	go hook.drain()
	return hook, nil
}

func (h *TelegramHook) Levels() []logrus.Level {
	return []logrus.Level{logrus.ErrorLevel, logrus.FatalLevel, logrus.PanicLevel}
}

// Fire never blocks on the Bot API, except for fatal and panic entries which
// are sent inline because the process is about to stop.
func (h *TelegramHook) Fire(entry *logrus.Entry) error {
	formatted, err := h.formatter.Format(entry)
	if err != nil {
		return err
	}
	text := formatTelegramAlert(h.hostname, string(formatted))

	if entry.Level <= logrus.FatalLevel {
		h.send(text)
		return nil
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		h.drop("hook closed")
		return nil
	}
	select {
	case h.queue <- text:
	default:
		h.drop("queue full")
	}
	return nil
}

// Close stops accepting alerts and waits until the queued ones are sent.
func (h *TelegramHook) Close() {
	h.mu.Lock()
	if !h.closed {
		h.closed = true
		close(h.queue)
	}
	h.mu.Unlock()
	h.wg.Wait()
}

// Dropped reports how many alerts were discarded without being sent.
func (h *TelegramHook) Dropped() int64 {
	return atomic.LoadInt64(&h.dropped)
}

func (h *TelegramHook) drain() {
	defer h.wg.Done()
	for text := range h.queue {
		h.send(text)
	}
}

// Must not log through logrus from here, it would re-enter this hook.
func (h *TelegramHook) drop(reason string) {
	atomic.AddInt64(&h.dropped, 1)
	fmt.Fprintf(os.Stderr, "telegram error hook: alert dropped, %s\n", reason)
}

func (h *TelegramHook) send(text string) {
	if _, err := h.bot.Send(h.newMessage(text, tgbotapi.ModeMarkdown)); err != nil {
		// Log lines often carry characters that break Markdown entities.
		if _, err := h.bot.Send(h.newMessage(text, "")); err != nil {
			fmt.Fprintf(os.Stderr, "telegram error hook: %v\n", err)
		}
	}
}

func (h *TelegramHook) newMessage(text, parseMode string) tgbotapi.MessageConfig {
	var msg tgbotapi.MessageConfig
	if h.channel != "" {
		msg = tgbotapi.NewMessageToChannel(h.channel, text)
	} else {
		msg = tgbotapi.NewMessage(h.chatID, text)
	}
	msg.ParseMode = parseMode
	msg.DisableWebPagePreview = true
	return msg
}

func formatTelegramAlert(hostname, body string) string {
	text := fmt.Sprintf("🚨 *Error on %s*\n```\n%s\n```", hostname, strings.TrimRight(body, "\n"))
	return truncateMessage(text)
}

// truncateMessage keeps a message under the Bot API limit without splitting
// a multi-byte character.
func truncateMessage(text string) string {
	runes := []rune(text)
	if len(runes) <= telegramMaxMessageLength {
		return text
	}
	return string(runes[:telegramTruncatedLength]) + truncationSuffix
}
