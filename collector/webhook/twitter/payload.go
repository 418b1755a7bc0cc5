package twitter

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/lovelive-bluebird/bluebird/model"
	Logger "github.com/lovelive-bluebird/bluebird/utils/log"
)

const TestWebhookEventType = "test_webhook_url"

// Keys that may hold the tweet list when "tweets" is absent.
var fallbackTweetKeys = []string{"data", "statuses", "results"}

// WebhookPayload is the envelope twitterapi.io posts to us. Fields beyond
// these are ignored.
type WebhookPayload struct {
	EventType string
	RuleId    string
	RuleTag   string
	Tweets    []model.Tweet
}

func (p *WebhookPayload) IsTest() bool {
	return p.EventType == TestWebhookEventType
}

// ParseWebhookPayload locates the tweets in body: under "tweets", else under
// the first of data/statuses/results holding a list, else the body itself
// when it looks like a single tweet. Entries that are not objects are
// skipped.
func ParseWebhookPayload(body []byte) (*WebhookPayload, error) {
	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, errors.Wrap(err, "payload is not a json object")
	}

	payload := &WebhookPayload{}
	decodeString(raw["event_type"], &payload.EventType)
	decodeString(raw["rule_id"], &payload.RuleId)
	decodeString(raw["rule_tag"], &payload.RuleTag)

	if list, ok := asList(raw["tweets"]); ok {
		payload.Tweets = decodeTweets(list)
		return payload, nil
	}
	for _, key := range fallbackTweetKeys {
		if list, ok := asList(raw[key]); ok {
			payload.Tweets = decodeTweets(list)
			return payload, nil
		}
	}
	if _, hasId := raw["id"]; hasId {
		if _, hasText := raw["text"]; hasText {
			payload.Tweets = decodeTweets([]json.RawMessage{body})
		}
	}
	return payload, nil
}

func decodeString(raw json.RawMessage, out *string) {
	if len(raw) > 0 {
		json.Unmarshal(raw, out)
	}
}

func asList(raw json.RawMessage) ([]json.RawMessage, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, false
	}
	list := []json.RawMessage{}
	if err := json.Unmarshal(trimmed, &list); err != nil {
		return nil, false
	}
	return list, true
}

func decodeTweets(list []json.RawMessage) []model.Tweet {
	tweets := []model.Tweet{}
	for i, entry := range list {
		trimmed := bytes.TrimSpace(entry)
		if len(trimmed) == 0 || trimmed[0] != '{' {
			Logger.Log.WithField("index", i).Warn("skipping non-object tweet entry")
			continue
		}
		var tweet model.Tweet
		if err := json.Unmarshal(trimmed, &tweet); err != nil {
			Logger.Log.WithField("index", i).WithError(err).Warn("skipping malformed tweet entry")
			continue
		}
		tweets = append(tweets, tweet)
	}
	return tweets
}
