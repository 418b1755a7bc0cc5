package log

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTruncateMessage(t *testing.T) {
	short := "short message"
	assert.Equal(t, short, truncateMessage(short))

	long := strings.Repeat("あ", 5000)
	truncated := truncateMessage(long)
	assert.True(t, strings.HasSuffix(truncated, truncationSuffix))
	assert.Equal(t, telegramTruncatedLength+len([]rune(truncationSuffix)), len([]rune(truncated)))
}

func TestFormatTelegramAlert(t *testing.T) {
	text := formatTelegramAlert("host-1", "level=error msg=boom\n")
	assert.Equal(t, "🚨 *Error on host-1*\n```\nlevel=error msg=boom\n```", text)
}

func TestTelegramHookFallsBackToPlainText(t *testing.T) {
	var mu sync.Mutex
	parseModes := []string{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		mu.Lock()
		parseModes = append(parseModes, r.PostForm.Get("parse_mode"))
		mu.Unlock()
		if r.PostForm.Get("parse_mode") != "" {
			fmt.Fprint(w, `{"ok":false,"error_code":400,"description":"Bad Request: can't parse entities"}`)
			return
		}
		assert.Equal(t, "-100123", r.PostForm.Get("chat_id"))
		fmt.Fprint(w, `{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":-100123,"type":"group"}}}`)
	}))
	defer server.Close()

	hook, err := newTelegramHookWithEndpoint("token", "-100123", server.URL+"/bot%s/%s", telegramQueueSize)
	require.NoError(t, err)

	entry := logrus.NewEntry(logrus.New())
	entry.Level = logrus.ErrorLevel
	entry.Message = "store unavailable"
	assert.NoError(t, hook.Fire(entry))
	hook.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"Markdown", ""}, parseModes)
}

func TestTelegramHookRejectsInvalidChat(t *testing.T) {
	_, err := NewTelegramHook("token", "not-a-chat")
	require.Error(t, err)
	assert.Contains(t, fmt.Sprintf("%+v", err), "log.newTelegramHookWithEndpoint")

	_, err = NewTelegramHook("", "-100123")
	assert.Error(t, err)

	hook, err := NewTelegramHook("token", "@bluebird_alerts")
	require.NoError(t, err)
	defer hook.Close()
	assert.Equal(t, "@bluebird_alerts", hook.channel)
}

func TestTelegramHookDoesNotBlockOnSlowApi(t *testing.T) {
	release := make(chan struct{})
	var requests int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&requests, 1)
		<-release
		fmt.Fprint(w, `{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":-100123,"type":"group"}}}`)
	}))
	defer server.Close()

	hook, err := newTelegramHookWithEndpoint("token", "-100123", server.URL+"/bot%s/%s", 1)
	require.NoError(t, err)

	entry := logrus.NewEntry(logrus.New())
	entry.Level = logrus.ErrorLevel
	entry.Message = "publish failed"

	start := time.Now()
	for i := 0; i < 10; i++ {
		assert.NoError(t, hook.Fire(entry))
	}
	assert.True(t, time.Since(start) < time.Second, "Fire blocked on the Bot API")

	close(release)
	hook.Close()

	sent := atomic.LoadInt64(&requests)
	assert.GreaterOrEqual(t, sent, int64(1))
	assert.LessOrEqual(t, sent, int64(2))
	assert.Equal(t, int64(10), sent+hook.Dropped())

	assert.NoError(t, hook.Fire(entry))
	assert.Equal(t, int64(11), sent+hook.Dropped())
}

func TestSlackHookPostsEntry(t *testing.T) {
	var got *slack.WebhookMessage
	hook := &SlackHook{webhookURL: "https://hooks.slack.test/x", post: func(url string, msg *slack.WebhookMessage) error {
		assert.Equal(t, "https://hooks.slack.test/x", url)
		got = msg
		return nil
	}}

	entry := logrus.NewEntry(logrus.New()).WithField("tweet_id", "123")
	entry.Level = logrus.ErrorLevel
	entry.Message = "publish failed"
	require.NoError(t, hook.Fire(entry))

	require.NotNil(t, got)
	assert.Contains(t, got.Text, "publish failed")
	require.Len(t, got.Attachments, 1)
	assert.Equal(t, "tweet_id", got.Attachments[0].Fields[0].Title)
	assert.Equal(t, "123", got.Attachments[0].Fields[0].Value)
}
