package threading

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lovelive-bluebird/bluebird/model"
)

type mapLookup struct {
	links map[string]int64
	err   error
	calls []string
}

func (m *mapLookup) GetRepublishedID(_ context.Context, tweetId string) (int64, bool, error) {
	m.calls = append(m.calls, tweetId)
	if m.err != nil {
		return 0, false, m.err
	}
	id, ok := m.links[tweetId]
	return id, ok, nil
}

func at(hour int) *time.Time {
	t := time.Date(2025, 5, 15, hour, 0, 0, 0, time.UTC)
	return &t
}

func ids(posts []model.Post) []string {
	res := []string{}
	for _, p := range posts {
		res = append(res, p.Id)
	}
	return res
}

func TestOrderPutsUnknownTimestampsLast(t *testing.T) {
	posts := []model.Post{
		{Id: "T3", CreatedAt: at(3)},
		{Id: "T1", CreatedAt: at(1)},
		{Id: "none", CreatedAt: nil},
		{Id: "T2", CreatedAt: at(2)},
	}
	assert.Equal(t, []string{"T1", "T2", "T3", "none"}, ids(Order(posts)))
	// input untouched
	assert.Equal(t, "T3", posts[0].Id)
}

func TestOrderIsStable(t *testing.T) {
	posts := []model.Post{
		{Id: "a", CreatedAt: at(1)},
		{Id: "x"},
		{Id: "b", CreatedAt: at(1)},
		{Id: "y"},
		{Id: "c", CreatedAt: at(0)},
	}
	if diff := cmp.Diff([]string{"c", "a", "b", "x", "y"}, ids(Order(posts))); diff != "" {
		t.Errorf("unexpected order (-want +got):\n%s", diff)
	}
}

func TestLinkResolvesReplyTarget(t *testing.T) {
	r := NewResolver(&mapLookup{links: map[string]int64{"P1": 42}})

	linked := r.Link(context.Background(), model.Post{Id: "C1", InReplyToId: "P1"})
	require.NotNil(t, linked.ReplyTo)
	assert.Equal(t, int64(42), *linked.ReplyTo)

	orphan := r.Link(context.Background(), model.Post{Id: "C2", InReplyToId: "P9"})
	assert.Nil(t, orphan.ReplyTo)
}

func TestLinkSkipsLookupForTopLevelPosts(t *testing.T) {
	lookup := &mapLookup{}
	linked := NewResolver(lookup).Link(context.Background(), model.Post{Id: "T"})
	assert.Nil(t, linked.ReplyTo)
	assert.Empty(t, lookup.calls)
}

func TestLinkLookupErrorMeansNoReply(t *testing.T) {
	r := NewResolver(&mapLookup{err: errors.New("store unavailable")})
	linked := r.Link(context.Background(), model.Post{Id: "C1", InReplyToId: "P1"})
	assert.Nil(t, linked.ReplyTo)
}

func TestOrderAndLinkSeesParentPersistedEarlierInBatch(t *testing.T) {
	lookup := &mapLookup{links: map[string]int64{}}
	r := NewResolver(lookup)

	posts := []model.Post{
		{Id: "child", InReplyToId: "parent", CreatedAt: at(2)},
		{Id: "parent", CreatedAt: at(1)},
	}
	seen := []LinkedPost{}
	err := r.OrderAndLink(context.Background(), posts, func(_ context.Context, p LinkedPost) error {
		seen = append(seen, p)
		// persist the mapping like the publisher would
		lookup.links[p.Post.Id] = int64(100 + len(seen))
		return nil
	})
	require.NoError(t, err)
	require.Len(t, seen, 2)
	assert.Equal(t, "parent", seen[0].Post.Id)
	assert.Nil(t, seen[0].ReplyTo)
	assert.Equal(t, "child", seen[1].Post.Id)
	require.NotNil(t, seen[1].ReplyTo)
	assert.Equal(t, int64(101), *seen[1].ReplyTo)
}

func TestOrderAndLinkContinuesAfterPostError(t *testing.T) {
	r := NewResolver(&mapLookup{})
	posts := []model.Post{{Id: "a", CreatedAt: at(1)}, {Id: "b", CreatedAt: at(2)}}

	calls := 0
	err := r.OrderAndLink(context.Background(), posts, func(context.Context, LinkedPost) error {
		calls++
		return errors.New("publish failed")
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestOrderAndLinkStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := NewResolver(&mapLookup{})
	posts := []model.Post{{Id: "a", CreatedAt: at(1)}, {Id: "b", CreatedAt: at(2)}}

	calls := 0
	err := r.OrderAndLink(ctx, posts, func(context.Context, LinkedPost) error {
		calls++
		cancel()
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
