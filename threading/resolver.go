// Package threading orders a batch of posts chronologically and resolves,
// for each reply, the message its parent was republished as.
package threading

import (
	"context"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/lovelive-bluebird/bluebird/model"
	. "github.com/lovelive-bluebird/bluebird/utils/log"
)

// LinkLookup finds the republished message for a source post.
type LinkLookup interface {
	GetRepublishedID(ctx context.Context, tweetId string) (int64, bool, error)
}

// LinkedPost is a post with its resolved reply target. ReplyTo is nil for
// top-level posts and for replies whose parent was never republished.
type LinkedPost struct {
	Post    model.Post
	ReplyTo *int64
}

type Resolver struct {
	lookup LinkLookup
}

func NewResolver(lookup LinkLookup) *Resolver {
	return &Resolver{lookup: lookup}
}

// Order returns a copy of posts sorted by timestamp, oldest first. Posts
// without a usable timestamp go last, keeping their input order. The sort
// is stable, so equal timestamps keep input order too.
func Order(posts []model.Post) []model.Post {
	res := make([]model.Post, len(posts))
	copy(res, posts)
	sort.SliceStable(res, func(i, j int) bool {
		a, b := res[i].CreatedAt, res[j].CreatedAt
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.Before(*b)
		}
	})
	return res
}

// Link resolves the reply target of one post. A failed lookup is logged and
// leaves the post unthreaded, it never fails the post.
func (r *Resolver) Link(ctx context.Context, post model.Post) LinkedPost {
	linked := LinkedPost{Post: post}
	if !post.IsReply() {
		return linked
	}

	logger := Log.WithFields(logrus.Fields{"tweet_id": post.Id, "parent_tweet_id": post.InReplyToId})
	messageId, found, err := r.lookup.GetRepublishedID(ctx, post.InReplyToId)
	if err != nil {
		logger.WithError(err).Warn("parent lookup failed, publishing without reply")
		return linked
	}
	if !found {
		logger.Info("parent was never republished, publishing without reply")
		return linked
	}
	linked.ReplyTo = &messageId
	return linked
}

// OrderAndLink orders the batch and calls fn once per post, oldest first.
// Each reply target is resolved right before its fn call, so a reply sees a
// parent that fn persisted earlier in the same batch. Errors from fn belong
// to that post and do not stop the walk. Only cancellation of ctx does.
func (r *Resolver) OrderAndLink(ctx context.Context, posts []model.Post, fn func(ctx context.Context, post LinkedPost) error) error {
	for _, post := range Order(posts) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(ctx, r.Link(ctx, post)); err != nil {
			Log.WithField("tweet_id", post.Id).WithError(err).Debug("post handler returned error")
		}
	}
	return nil
}
