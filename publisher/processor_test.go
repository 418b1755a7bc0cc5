package publisher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lovelive-bluebird/bluebird/model"
	"github.com/lovelive-bluebird/bluebird/persona"
	"github.com/lovelive-bluebird/bluebird/telegram"
	"github.com/lovelive-bluebird/bluebird/threading"
	"github.com/lovelive-bluebird/bluebird/translate"
)

type fakeTranslator struct {
	fail bool
}

func (f *fakeTranslator) Translate(_ context.Context, req translate.Request) (*translate.Result, error) {
	if f.fail {
		return nil, &translate.TranslationError{Failures: []translate.Failure{
			{Spec: translate.ModelSpec{Provider: "anthropic", Model: "m1"}, Err: errors.New("boom")},
		}}
	}
	return &translate.Result{Text: "[ko] " + req.Text, Spec: translate.ModelSpec{Provider: "anthropic", Model: "m1"}}, nil
}

type sentMessage struct {
	credential string
	text       string
	replyTo    *int64
}

type fakeSink struct {
	nextId      int64
	sent        []sentMessage
	failFor     string
	noticeCount int
}

func (f *fakeSink) Publish(_ context.Context, credential string, text string, replyTo *int64) (int64, error) {
	if text == telegram.SystemNotice {
		f.noticeCount++
	}
	if credential == f.failFor {
		return 0, errors.New("telegram: forbidden")
	}
	f.nextId++
	f.sent = append(f.sent, sentMessage{credential: credential, text: text, replyTo: replyTo})
	return f.nextId, nil
}

// memoryStore satisfies both RecordStore and threading.LinkLookup.
type memoryStore struct {
	mu      sync.Mutex
	records []model.TranslatedMessage
	putErr  error
}

func (m *memoryStore) PutTranslationRecord(_ context.Context, msg *model.TranslatedMessage) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return "", m.putErr
	}
	rec := *msg
	rec.Id = fmt.Sprintf("rec-%d", len(m.records)+1)
	m.records = append(m.records, rec)
	return rec.Id, nil
}

func (m *memoryStore) GetRepublishedID(_ context.Context, tweetId string) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.records) - 1; i >= 0; i-- {
		if m.records[i].TweetId == tweetId {
			return m.records[i].TelegramMessageId, true, nil
		}
	}
	return 0, false, nil
}

func (m *memoryStore) GetRecentTranslations(_ context.Context, characterName string, limit int) ([]model.TranslationPair, error) {
	return []model.TranslationPair{}, nil
}

type rememberingCache struct {
	links map[string]int64
}

func (c *rememberingCache) Remember(_ context.Context, tweetId string, messageId int64) {
	c.links[tweetId] = messageId
}

func at(hour int) *time.Time {
	t := time.Date(2025, 5, 15, hour, 0, 0, 0, time.UTC)
	return &t
}

func newTestProcessor(t *testing.T, translator Translator, sink *fakeSink, store *memoryStore) *TweetPublisherProcessor {
	t.Helper()
	personas, err := persona.NewRegistry([]persona.Persona{
		{ID: "polka", Handle: "polka_official", Credential: "token-polka"},
		{ID: "mai", Handle: "mai_official", Credential: "token-mai"},
	})
	require.NoError(t, err)
	return NewTweetPublisherProcessor(personas, threading.NewResolver(store), translator, sink, store, Config{
		NoticePersona:  "mai",
		ReferenceLimit: DefaultReferenceLimit,
	})
}

func TestProcessBatchThreadsReplyOntoParentFromSameBatch(t *testing.T) {
	sink := &fakeSink{nextId: 100}
	store := &memoryStore{}
	processor := newTestProcessor(t, &fakeTranslator{}, sink, store)
	cache := &rememberingCache{links: map[string]int64{}}
	processor.SetLinkCache(cache)

	// Delivered newest first, as webhooks often do.
	posts := []model.Post{
		{Id: "P2", Text: "返信", AuthorHandle: "Polka_Official", CreatedAt: at(2), InReplyToId: "P1", Url: "https://twitter.com/polka_official/status/P2"},
		{Id: "P1", Text: "親", AuthorHandle: "polka_official", CreatedAt: at(1), Url: "https://twitter.com/polka_official/status/P1"},
	}
	results, err := processor.ProcessBatch(context.Background(), posts)
	require.NoError(t, err)

	require.Len(t, sink.sent, 2)
	assert.Nil(t, sink.sent[0].replyTo)
	require.NotNil(t, sink.sent[1].replyTo)
	assert.Equal(t, int64(101), *sink.sent[1].replyTo)
	assert.True(t, strings.HasPrefix(sink.sent[0].text, "[ko] 親"))
	assert.Equal(t, "token-polka", sink.sent[1].credential)

	require.Len(t, store.records, 2)
	assert.Equal(t, "P1", store.records[0].TweetId)
	assert.Nil(t, store.records[0].ParentTweetId)
	assert.Equal(t, "P2", store.records[1].TweetId)
	require.NotNil(t, store.records[1].ParentTweetId)
	assert.Equal(t, "P1", *store.records[1].ParentTweetId)
	assert.Equal(t, int64(102), store.records[1].TelegramMessageId)
	require.NotNil(t, store.records[1].LlmProvider)
	assert.Equal(t, "anthropic:m1", *store.records[1].LlmProvider)
	assert.Equal(t, "返信", store.records[1].OriginalText)
	assert.Equal(t, "[ko] 返信", store.records[1].TranslationText)

	want := []Result{
		{TweetId: "P1", Forwarded: true, Character: "polka", Translated: true, Model: "anthropic:m1", MessageId: 101, RecordId: "rec-1"},
		{TweetId: "P2", Forwarded: true, Character: "polka", Translated: true, Model: "anthropic:m1", IsReply: true, MessageId: 102, RecordId: "rec-2"},
	}
	if diff := cmp.Diff(want, results); diff != "" {
		t.Errorf("unexpected results (-want +got):\n%s", diff)
	}
	assert.Equal(t, map[string]int64{"P1": 101, "P2": 102}, cache.links)
}

func TestProcessBatchPublishesOriginalWhenTranslationFails(t *testing.T) {
	sink := &fakeSink{}
	store := &memoryStore{}
	processor := newTestProcessor(t, &fakeTranslator{fail: true}, sink, store)

	results, err := processor.ProcessBatch(context.Background(), []model.Post{
		{Id: "1", Text: "原文のまま", AuthorHandle: "polka_official", Url: "u"},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Forwarded)
	assert.False(t, results[0].Translated)
	assert.True(t, strings.HasPrefix(sink.sent[0].text, "原文のまま\n\n"))
	assert.Nil(t, store.records[0].LlmProvider)
	assert.Equal(t, "原文のまま", store.records[0].TranslationText)
}

func TestProcessBatchSkipsUnknownAndMissingAuthors(t *testing.T) {
	sink := &fakeSink{}
	processor := newTestProcessor(t, &fakeTranslator{}, sink, &memoryStore{})

	results, err := processor.ProcessBatch(context.Background(), []model.Post{
		{Id: "a", Text: "x", AuthorHandle: "stranger", CreatedAt: at(1)},
		{Id: "b", Text: "y", CreatedAt: at(2)},
	})
	require.NoError(t, err)
	want := []Result{
		{TweetId: "a", Reason: ReasonNoPersona},
		{TweetId: "b", Reason: ReasonMissingAuthor},
	}
	if diff := cmp.Diff(want, results); diff != "" {
		t.Errorf("unexpected results (-want +got):\n%s", diff)
	}
	assert.Empty(t, sink.sent)
}

func TestProcessBatchPublishFailureSendsNoticeAndContinues(t *testing.T) {
	sink := &fakeSink{failFor: "token-polka"}
	store := &memoryStore{}
	processor := newTestProcessor(t, &fakeTranslator{}, sink, store)

	results, err := processor.ProcessBatch(context.Background(), []model.Post{
		{Id: "1", Text: "x", AuthorHandle: "polka_official", CreatedAt: at(1)},
		{Id: "2", Text: "y", AuthorHandle: "mai_official", CreatedAt: at(2)},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.False(t, results[0].Forwarded)
	assert.Equal(t, ReasonDeliveryFailed, results[0].Reason)
	assert.Contains(t, results[0].Error, "forbidden")
	assert.True(t, results[1].Forwarded)

	assert.Equal(t, 1, sink.noticeCount)
	// notice plus the second post, both as mai
	require.Len(t, sink.sent, 2)
	assert.Equal(t, telegram.SystemNotice, sink.sent[0].text)
	assert.Equal(t, "token-mai", sink.sent[0].credential)
	require.Len(t, store.records, 1)
	assert.Equal(t, "2", store.records[0].TweetId)
}

func TestProcessBatchReportsPersistFailure(t *testing.T) {
	sink := &fakeSink{}
	store := &memoryStore{putErr: errors.New("store unavailable")}
	processor := newTestProcessor(t, &fakeTranslator{}, sink, store)

	results, err := processor.ProcessBatch(context.Background(), []model.Post{
		{Id: "1", Text: "x", AuthorHandle: "polka_official"},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Forwarded)
	assert.Equal(t, ReasonRecordNotSaved, results[0].Reason)
	assert.Equal(t, int64(1), results[0].MessageId)
	assert.Empty(t, results[0].RecordId)
}
