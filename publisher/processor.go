package publisher

import (
	"context"
	"time"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/lovelive-bluebird/bluebird/model"
	"github.com/lovelive-bluebird/bluebird/persona"
	"github.com/lovelive-bluebird/bluebird/telegram"
	"github.com/lovelive-bluebird/bluebird/threading"
	"github.com/lovelive-bluebird/bluebird/translate"
	. "github.com/lovelive-bluebird/bluebird/utils/log"
)

const (
	ReasonMissingAuthor   = "Missing author information"
	ReasonNoPersona       = "No matching character found"
	ReasonDeliveryFailed  = "Message delivery failed"
	ReasonRecordNotSaved  = "Link record not saved"
	DefaultReferenceLimit = 3
)

type Translator interface {
	Translate(ctx context.Context, req translate.Request) (*translate.Result, error)
}

type Sink interface {
	Publish(ctx context.Context, credential string, text string, replyTo *int64) (int64, error)
}

type RecordStore interface {
	PutTranslationRecord(ctx context.Context, msg *model.TranslatedMessage) (string, error)
	GetRecentTranslations(ctx context.Context, characterName string, limit int) ([]model.TranslationPair, error)
}

// LinkCache is told about every link right after it is stored. Optional.
type LinkCache interface {
	Remember(ctx context.Context, tweetId string, messageId int64)
}

// Result is the per-post outcome reported back to the webhook caller.
type Result struct {
	TweetId    string `json:"tweet_id"`
	Forwarded  bool   `json:"forwarded"`
	Character  string `json:"character,omitempty"`
	Translated bool   `json:"translated"`
	Model      string `json:"model,omitempty"`
	IsReply    bool   `json:"is_reply"`
	MessageId  int64  `json:"message_id,omitempty"`
	RecordId   string `json:"record_id,omitempty"`
	Reason     string `json:"reason,omitempty"`
	Error      string `json:"error,omitempty"`
}

type Config struct {
	// Persona whose bot posts the system notice after a failed publish.
	// Empty disables the notice.
	NoticePersona string
	// Number of earlier translations passed to the translator as reference.
	// Zero disables references.
	ReferenceLimit int
}

// TweetPublisherProcessor runs one batch of posts through translate, publish
// and persist. Posts within a batch are handled one by one, in time order,
// so that replies can thread onto parents from the same batch.
type TweetPublisherProcessor struct {
	personas   *persona.Registry
	resolver   *threading.Resolver
	translator Translator
	sink       Sink
	store      RecordStore
	cache      LinkCache
	metrics    statsd.ClientInterface
	config     Config
}

func NewTweetPublisherProcessor(
	personas *persona.Registry,
	resolver *threading.Resolver,
	translator Translator,
	sink Sink,
	store RecordStore,
	config Config,
) *TweetPublisherProcessor {
	return &TweetPublisherProcessor{
		personas:   personas,
		resolver:   resolver,
		translator: translator,
		sink:       sink,
		store:      store,
		metrics:    &statsd.NoOpClient{},
		config:     config,
	}
}

func (processor *TweetPublisherProcessor) SetLinkCache(cache LinkCache) {
	processor.cache = cache
}

func (processor *TweetPublisherProcessor) SetMetrics(metrics statsd.ClientInterface) {
	if metrics != nil {
		processor.metrics = metrics
	}
}

// ProcessBatch returns one Result per post, in processing (chronological)
// order. The error is non-nil only when ctx ended the batch early; results
// for the posts handled so far are still returned.
func (processor *TweetPublisherProcessor) ProcessBatch(ctx context.Context, posts []model.Post) ([]Result, error) {
	batchId := uuid.New().String()
	logger := Log.WithFields(logrus.Fields{"batch_id": batchId, "size": len(posts)})
	logger.Info("processing batch")
	start := time.Now()

	results := []Result{}
	err := processor.resolver.OrderAndLink(ctx, posts, func(ctx context.Context, post threading.LinkedPost) error {
		res := processor.ProcessOnePost(ctx, post)
		results = append(results, res)
		if res.Error != "" {
			return errors.New(res.Error)
		}
		return nil
	})

	processor.metrics.Timing("bluebird.batch.duration", time.Since(start), []string{}, 1)
	logger.WithField("forwarded", countForwarded(results)).Info("batch processed")
	return results, err
}

// Process one post in following major steps:
// Step1. match the author to a persona
// Step2. translate, falling back to the original text
// Step3. publish as the persona, replying to the parent if known
// Step4. persist the link so later replies can thread onto this message
func (processor *TweetPublisherProcessor) ProcessOnePost(ctx context.Context, linked threading.LinkedPost) Result {
	post := linked.Post
	res := Result{TweetId: post.Id, IsReply: linked.ReplyTo != nil}
	logger := Log.WithFields(logrus.Fields{"tweet_id": post.Id, "author": post.AuthorHandle})

	if post.AuthorHandle == "" {
		logger.Warn("post has no author")
		res.Reason = ReasonMissingAuthor
		processor.count("skipped", "reason:missing_author")
		return res
	}
	p, ok := processor.personas.ByHandle(post.AuthorHandle)
	if !ok {
		logger.Info("no persona for author")
		res.Reason = ReasonNoPersona
		processor.count("skipped", "reason:no_persona")
		return res
	}
	res.Character = p.ID
	logger = logger.WithField("character", p.ID)

	text, spec := processor.translate(ctx, p, post, logger)
	res.Translated = spec != nil
	var llmProvider *string
	if spec != nil {
		s := spec.String()
		llmProvider = &s
		res.Model = s
	}

	messageId, err := processor.sink.Publish(ctx, p.Credential, telegram.FormatPost(post, text), linked.ReplyTo)
	if err != nil {
		logger.WithError(err).Error("failed to publish post")
		res.Reason = ReasonDeliveryFailed
		res.Error = err.Error()
		processor.count("failed", "stage:publish")
		processor.sendErrorNotice(ctx)
		return res
	}
	res.Forwarded = true
	res.MessageId = messageId

	record := &model.TranslatedMessage{
		TelegramMessageId: messageId,
		TweetId:           post.Id,
		TweetUrl:          post.Url,
		CharacterName:     p.ID,
		LlmProvider:       llmProvider,
		TranslationText:   text,
		OriginalText:      post.Text,
	}
	if post.InReplyToId != "" {
		parent := post.InReplyToId
		record.ParentTweetId = &parent
	}
	recordId, err := processor.store.PutTranslationRecord(ctx, record)
	if err != nil {
		// Already published. Only threading of later replies suffers.
		logger.WithError(err).Error("failed to persist link record")
		res.Reason = ReasonRecordNotSaved
		res.Error = err.Error()
		processor.count("failed", "stage:persist")
		return res
	}
	res.RecordId = recordId
	if processor.cache != nil {
		processor.cache.Remember(ctx, post.Id, messageId)
	}

	processor.count("forwarded", "translated:"+boolTag(res.Translated))
	logger.WithFields(logrus.Fields{"message_id": messageId, "is_reply": res.IsReply}).Info("post forwarded")
	return res
}

// translate returns the text to publish and the model that produced it. The
// model is nil when the original text is published instead.
func (processor *TweetPublisherProcessor) translate(ctx context.Context, p *persona.Persona, post model.Post, logger *logrus.Entry) (string, *translate.ModelSpec) {
	req := translate.Request{Text: post.Text}
	if processor.config.ReferenceLimit > 0 {
		refs, err := processor.store.GetRecentTranslations(ctx, p.ID, processor.config.ReferenceLimit)
		if err != nil {
			logger.WithError(err).Warn("could not load reference translations")
		}
		req.References = refs
	}

	result, err := processor.translator.Translate(ctx, req)
	if err != nil {
		logger.WithError(err).Error("translation failed, publishing original text")
		processor.count("translation_failed")
		return post.Text, nil
	}
	if result.Text == "" {
		return post.Text, nil
	}
	spec := result.Spec
	return result.Text, &spec
}

func (processor *TweetPublisherProcessor) sendErrorNotice(ctx context.Context) {
	if processor.config.NoticePersona == "" {
		return
	}
	p, ok := processor.personas.ByID(processor.config.NoticePersona)
	if !ok {
		Log.WithField("persona", processor.config.NoticePersona).Error("notice persona is not configured")
		return
	}
	if _, err := processor.sink.Publish(ctx, p.Credential, telegram.SystemNotice, nil); err != nil {
		// Never retried, the chat is likely unreachable for the same reason.
		Log.WithError(err).Error("failed to send error notice")
		return
	}
	Log.Info("error notice sent")
}

func (processor *TweetPublisherProcessor) count(outcome string, tags ...string) {
	processor.metrics.Incr("bluebird.post."+outcome, tags, 1)
}

func countForwarded(results []Result) int {
	n := 0
	for _, r := range results {
		if r.Forwarded {
			n++
		}
	}
	return n
}

func boolTag(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
