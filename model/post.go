package model

import (
	"fmt"
	"time"

	"github.com/araddon/dateparse"
)

// Post is a single social-media post travelling through the relay.
//
// CreatedAt is nil when CreatedAtRaw is empty or unparseable. InReplyToId is
// empty for top-level posts.
type Post struct {
	Id           string
	Text         string
	AuthorHandle string
	AuthorName   string
	CreatedAtRaw string
	CreatedAt    *time.Time
	InReplyToId  string
	Url          string
}

// TwitterTimeLayout is the timestamp layout used by the Twitter API, e.g.
// "Thu May 15 23:21:00 +0000 2025".
const TwitterTimeLayout = time.RubyDate

// ParsePostTime returns nil when raw cannot be understood. The Twitter layout
// is tried first, then the usual suspects through dateparse.
func ParsePostTime(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	if t, err := time.Parse(TwitterTimeLayout, raw); err == nil {
		return &t
	}
	if t, err := dateparse.ParseStrict(raw); err == nil {
		return &t
	}
	return nil
}

func FallbackPostUrl(handle, id string) string {
	if handle == "" {
		handle = "unknown"
	}
	return fmt.Sprintf("https://twitter.com/%s/status/%s", handle, id)
}

func (p Post) IsReply() bool {
	return p.InReplyToId != ""
}
