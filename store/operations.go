package store

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/lovelive-bluebird/bluebird/model"
)

const (
	insertTranslatedMessageSQL = `INSERT INTO translated_messages
	(telegram_message_id, tweet_id, tweet_url, parent_tweet_id, character_name, llm_provider, translation_text, original_text)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	RETURNING id`

	selectRepublishedIdSQL = `SELECT telegram_message_id FROM translated_messages
	WHERE tweet_id = ? ORDER BY created_at DESC LIMIT 1`

	selectRecentTranslationsSQL = `SELECT original_text, translation_text FROM translated_messages
	WHERE character_name = ? ORDER BY created_at DESC LIMIT ?`
)

// PutTranslationRecord inserts a link record and returns its generated id.
// Id and CreatedAt on msg are ignored, the database assigns both.
func (s *Store) PutTranslationRecord(ctx context.Context, msg *model.TranslatedMessage) (string, error) {
	var id string
	err := s.transaction(ctx, "put translation record", func(tx *gorm.DB) error {
		return tx.Raw(insertTranslatedMessageSQL,
			msg.TelegramMessageId,
			msg.TweetId,
			msg.TweetUrl,
			msg.ParentTweetId,
			msg.CharacterName,
			msg.LlmProvider,
			msg.TranslationText,
			msg.OriginalText,
		).Row().Scan(&id)
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// GetRepublishedID returns the message id the post was most recently
// republished as. found is false when the post was never republished.
func (s *Store) GetRepublishedID(ctx context.Context, tweetId string) (messageId int64, found bool, err error) {
	err = s.transaction(ctx, "get republished id", func(tx *gorm.DB) error {
		scanErr := tx.Raw(selectRepublishedIdSQL, tweetId).Row().Scan(&messageId)
		if errors.Is(scanErr, sql.ErrNoRows) {
			return nil
		}
		if scanErr != nil {
			return scanErr
		}
		found = true
		return nil
	})
	if err != nil {
		return 0, false, err
	}
	return messageId, found, nil
}

// GetRecentTranslations returns up to limit pairs published by the persona,
// newest first.
func (s *Store) GetRecentTranslations(ctx context.Context, characterName string, limit int) ([]model.TranslationPair, error) {
	if limit <= 0 {
		return []model.TranslationPair{}, nil
	}
	var res []model.TranslationPair
	err := s.transaction(ctx, "get recent translations", func(tx *gorm.DB) error {
		// Reset on retry.
		res = []model.TranslationPair{}
		rows, err := tx.Raw(selectRecentTranslationsSQL, characterName, limit).Rows()
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var pair model.TranslationPair
			if err := rows.Scan(&pair.OriginalText, &pair.TranslationText); err != nil {
				return err
			}
			res = append(res, pair)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Healthy reports whether a trivial query succeeds in a transaction. It is
// not retried, a health probe wants the current answer.
func (s *Store) Healthy(ctx context.Context) (bool, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var one int
		return tx.Raw("SELECT 1").Row().Scan(&one)
	})
	if err != nil {
		return false, errors.Wrap(err, "health check")
	}
	return true, nil
}
