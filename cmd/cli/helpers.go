package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/lovelive-bluebird/bluebird/app"
	"github.com/lovelive-bluebird/bluebird/app_setting"
	Twitter "github.com/lovelive-bluebird/bluebird/collector/webhook/twitter"
	"github.com/lovelive-bluebird/bluebird/model"
	"github.com/lovelive-bluebird/bluebird/persona"
	"github.com/lovelive-bluebird/bluebird/threading"
	Flag "github.com/lovelive-bluebird/bluebird/utils/flag"
)

// defaultQuery searches every configured persona's own tweets.
func defaultQuery(registry *persona.Registry) string {
	parts := []string{}
	for _, p := range registry.All() {
		parts = append(parts, "from:"+p.Handle)
	}
	return strings.Join(parts, " OR ")
}

func lookupForcedPersona(registry *persona.Registry, id string) (*persona.Persona, error) {
	if id == "" {
		return nil, nil
	}
	p, ok := registry.ByID(id)
	if !ok {
		ids := []string{}
		for _, known := range registry.All() {
			ids = append(ids, known.ID)
		}
		return nil, errors.Errorf("persona %q not found, available: %s", id, strings.Join(ids, ", "))
	}
	return p, nil
}

// toPosts converts tweets, attributing them all to forced when it is set.
func toPosts(tweets []model.Tweet, forced *persona.Persona) []model.Post {
	posts := make([]model.Post, 0, len(tweets))
	for _, tweet := range tweets {
		post := tweet.ToPost()
		if forced != nil {
			post.AuthorHandle = forced.Handle
		}
		posts = append(posts, post)
	}
	return posts
}

// parseTweetsFile accepts a bare tweet list, as written by dump-tweets, or
// a saved webhook payload.
func parseTweetsFile(data []byte) ([]model.Tweet, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		tweets := []model.Tweet{}
		if err := json.Unmarshal(trimmed, &tweets); err != nil {
			return nil, errors.Wrap(err, "parse tweet list")
		}
		return tweets, nil
	}
	payload, err := Twitter.ParseWebhookPayload(trimmed)
	if err != nil {
		return nil, err
	}
	return payload.Tweets, nil
}

func window(tweets []model.Tweet, offset, limit int) []model.Tweet {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(tweets) {
		return []model.Tweet{}
	}
	tweets = tweets[offset:]
	if limit > 0 && limit < len(tweets) {
		tweets = tweets[:limit]
	}
	return tweets
}

// describeDryRun lists, in sending order, which persona each post would go
// out as.
func describeDryRun(registry *persona.Registry, posts []model.Post) []string {
	lines := []string{}
	for _, post := range threading.Order(posts) {
		target := "skip, no matching persona"
		if p, ok := registry.ByHandle(post.AuthorHandle); ok && post.AuthorHandle != "" {
			target = "as " + p.ID
		}
		if post.IsReply() {
			target += ", reply to " + post.InReplyToId
		}
		lines = append(lines, fmt.Sprintf("%s @%s: %s", post.Id, post.AuthorHandle, target))
	}
	return lines
}

func forward(ctx context.Context, setting app_setting.AppSetting, registry *persona.Registry, posts []model.Post, dryRun bool) error {
	if dryRun {
		for _, line := range describeDryRun(registry, posts) {
			fmt.Println(line)
		}
		return nil
	}
	if len(posts) == 0 {
		fmt.Println("Nothing to send")
		return nil
	}

	a, err := app.Build(ctx, setting, *Flag.ServiceName)
	if err != nil {
		return err
	}
	defer a.Close()

	results, batchErr := a.Processor.ProcessBatch(ctx, posts)
	out, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))

	forwarded := 0
	for _, res := range results {
		if res.Forwarded {
			forwarded++
		}
	}
	fmt.Printf("Forwarded %d of %d tweets\n", forwarded, len(posts))
	return batchErr
}
