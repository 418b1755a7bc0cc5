package log

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/slack-go/slack"
)

type postWebhookFunc func(url string, msg *slack.WebhookMessage) error

// SlackHook posts ERROR and above to a Slack incoming webhook.
type SlackHook struct {
	webhookURL string
	post       postWebhookFunc
}

func NewSlackHook(webhookURL string) *SlackHook {
	return &SlackHook{webhookURL: webhookURL, post: slack.PostWebhook}
}

func (h *SlackHook) Levels() []logrus.Level {
	return []logrus.Level{logrus.ErrorLevel, logrus.FatalLevel, logrus.PanicLevel}
}

func (h *SlackHook) Fire(entry *logrus.Entry) error {
	fields := []slack.AttachmentField{}
	for k, v := range entry.Data {
		fields = append(fields, slack.AttachmentField{Title: k, Value: fmt.Sprint(v), Short: true})
	}
	msg := &slack.WebhookMessage{
		Text: fmt.Sprintf(":rotating_light: [%s] %s", entry.Level.String(), entry.Message),
		Attachments: []slack.Attachment{
			{Color: "danger", Fields: fields},
		},
	}
	if err := h.post(h.webhookURL, msg); err != nil {
		fmt.Fprintf(os.Stderr, "slack error hook: %v\n", err)
	}
	return nil
}
