package twitter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lovelive-bluebird/bluebird/collector/file_store"
	"github.com/lovelive-bluebird/bluebird/model"
	"github.com/lovelive-bluebird/bluebird/publisher"
)

type recordingProcessor struct {
	batches [][]model.Post
	err     error
}

func (p *recordingProcessor) ProcessBatch(ctx context.Context, posts []model.Post) ([]publisher.Result, error) {
	p.batches = append(p.batches, posts)
	results := []publisher.Result{}
	for _, post := range posts {
		results = append(results, publisher.Result{TweetId: post.Id, Forwarded: true})
	}
	return results, p.err
}

type handlerResponse struct {
	Status    string             `json:"status"`
	Message   string             `json:"message"`
	Processed []publisher.Result `json:"processed"`
}

func serve(t *testing.T, h *MessageHandler, body string) (int, handlerResponse) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/webhook", h.HandleTwitterMessage)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	var resp handlerResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w.Code, resp
}

func TestHandleTwitterMessage(t *testing.T) {
	processor := &recordingProcessor{}
	archive := file_store.NewFakeFileStore()
	h := NewMessageHandler(processor, archive)
	h.now = func() time.Time { return time.Date(2025, 6, 8, 12, 0, 0, 0, time.UTC) }

	body := `{"event_type":"tweet","tweets":[
		{"id":"100","text":"hello","createdAt":"Sun Jun 08 03:00:00 +0000 2025","author":{"userName":"Mai_staff","name":"Mai"}},
		{"id":"101","text":"world","author":{"userName":"akira"}}]}`
	code, resp := serve(t, h, body)

	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, "Processed 2 tweets", resp.Message)
	require.Len(t, resp.Processed, 2)
	assert.Equal(t, "100", resp.Processed[0].TweetId)

	require.Len(t, processor.batches, 1)
	batch := processor.batches[0]
	assert.Equal(t, "Mai_staff", batch[0].AuthorHandle)
	assert.Equal(t, "https://twitter.com/akira/status/101", batch[1].Url)

	require.Len(t, archive.Files, 1)
	for key, data := range archive.Files {
		assert.True(t, strings.HasPrefix(key, "webhook/2025-06-08/"))
		assert.JSONEq(t, body, string(data))
	}
}

func TestHandleTwitterMessageTestEvent(t *testing.T) {
	processor := &recordingProcessor{}
	code, resp := serve(t, NewMessageHandler(processor, nil), `{"event_type":"test_webhook_url"}`)

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "success", resp.Status)
	assert.Empty(t, processor.batches)
}

func TestHandleTwitterMessageNoTweets(t *testing.T) {
	processor := &recordingProcessor{}
	code, resp := serve(t, NewMessageHandler(processor, nil), `{"event_type":"tweet","tweets":[]}`)

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "skipped", resp.Status)
	assert.Empty(t, processor.batches)
}

func TestHandleTwitterMessageInvalidJson(t *testing.T) {
	code, resp := serve(t, NewMessageHandler(&recordingProcessor{}, nil), `{"tweets":`)

	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "error", resp.Status)
}

func TestHandleTwitterMessageInterrupted(t *testing.T) {
	processor := &recordingProcessor{err: context.Canceled}
	code, resp := serve(t, NewMessageHandler(processor, nil), `{"tweets":[{"id":"1","text":"a"}]}`)

	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "error", resp.Status)
	assert.Len(t, resp.Processed, 1)
}

// cancellingProcessor cancels the request context once the first post is
// handled and stops at the first post that sees a done context.
type cancellingProcessor struct {
	cancelRequest context.CancelFunc
	handled       []string
}

func (p *cancellingProcessor) ProcessBatch(ctx context.Context, posts []model.Post) ([]publisher.Result, error) {
	results := []publisher.Result{}
	for i, post := range posts {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		p.handled = append(p.handled, post.Id)
		results = append(results, publisher.Result{TweetId: post.Id, Forwarded: true})
		if i == 0 {
			p.cancelRequest()
		}
	}
	if _, ok := ctx.Deadline(); !ok {
		return results, errors.New("batch has no deadline")
	}
	return results, nil
}

func TestHandleTwitterMessageSurvivesClientDisconnect(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reqCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	processor := &cancellingProcessor{cancelRequest: cancel}

	router := gin.New()
	router.POST("/webhook", NewMessageHandler(processor, nil).HandleTwitterMessage)

	body := `{"tweets":[{"id":"a","text":"1"},{"id":"b","text":"2"},{"id":"c","text":"3"}]}`
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body)).WithContext(reqCtx)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"a", "b", "c"}, processor.handled)
	assert.Error(t, reqCtx.Err())
}
