package twitter

import (
	"bytes"
	"context"
	"fmt"
	"io/ioutil"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/lovelive-bluebird/bluebird/collector/file_store"
	"github.com/lovelive-bluebird/bluebird/model"
	"github.com/lovelive-bluebird/bluebird/publisher"
	Logger "github.com/lovelive-bluebird/bluebird/utils/log"
)

// DefaultBatchTimeout bounds a batch once it is detached from the request.
const DefaultBatchTimeout = 15 * time.Minute

// BatchProcessor is satisfied by *publisher.TweetPublisherProcessor.
type BatchProcessor interface {
	ProcessBatch(ctx context.Context, posts []model.Post) ([]publisher.Result, error)
}

// MessageHandler accepts tweet deliveries and runs them through the
// processor synchronously, replying with the per-tweet outcome.
type MessageHandler struct {
	processor BatchProcessor
	// Optional. Raw bodies are archived before processing.
	archive      file_store.FileStore
	batchTimeout time.Duration
	now          func() time.Time
}

func NewMessageHandler(processor BatchProcessor, archive file_store.FileStore) *MessageHandler {
	return &MessageHandler{
		processor:    processor,
		archive:      archive,
		batchTimeout: DefaultBatchTimeout,
		now:          time.Now,
	}
}

func (h *MessageHandler) HandleTwitterMessage(c *gin.Context) {
	body, err := ioutil.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "fail to get request body: " + err.Error()})
		return
	}

	payload, err := ParseWebhookPayload(body)
	if err != nil {
		Logger.Log.WithError(err).Warn("rejecting malformed webhook payload")
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": err.Error()})
		return
	}
	if payload.IsTest() {
		Logger.Log.Info("test webhook received")
		c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Test webhook received successfully"})
		return
	}

	batchId := uuid.New().String()
	logger := Logger.Log.WithFields(logrus.Fields{
		"batch_id": batchId,
		"rule_tag": payload.RuleTag,
		"tweets":   len(payload.Tweets),
	})
	h.archivePayload(batchId, body, logger)

	if len(payload.Tweets) == 0 {
		logger.Info("no tweets in webhook payload")
		c.JSON(http.StatusOK, gin.H{"status": "skipped", "message": "No tweets found in payload"})
		return
	}

	posts := make([]model.Post, 0, len(payload.Tweets))
	for _, tweet := range payload.Tweets {
		posts = append(posts, tweet.ToPost())
	}

	// A sender that disconnects must not abandon the rest of the batch.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), h.batchTimeout)
	defer cancel()
	results, err := h.processor.ProcessBatch(ctx, posts)
	if err != nil {
		logger.WithError(err).Error("batch interrupted")
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":    "error",
			"message":   err.Error(),
			"processed": results,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    "success",
		"message":   fmt.Sprintf("Processed %d tweets", len(results)),
		"processed": results,
	})
}

func (h *MessageHandler) archivePayload(batchId string, body []byte, logger *logrus.Entry) {
	if h.archive == nil {
		return
	}
	key, err := h.archive.Store(file_store.WebhookPayloadKey(h.now(), batchId), bytes.NewReader(body))
	if err != nil {
		logger.WithError(err).Warn("fail to archive webhook payload")
		return
	}
	logger.WithField("archive", h.archive.GetUrlFromKey(key)).Debug("webhook payload archived")
}

