package model

import "time"

// TranslatedMessage links a source post to the message it was republished
// as. Rows are append-only.
type TranslatedMessage struct {
	Id                string    `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	TelegramMessageId int64     `gorm:"not null;index"`
	TweetId           string    `gorm:"type:varchar(255);not null;index"`
	TweetUrl          string    `gorm:"type:varchar(512);not null"`
	ParentTweetId     *string   `gorm:"type:varchar(255);index"`
	CharacterName     string    `gorm:"type:varchar(128);not null"`
	LlmProvider       *string   `gorm:"type:varchar(128)"`
	TranslationText   string    `gorm:"type:text;not null"`
	OriginalText      string    `gorm:"type:text;not null"`
	CreatedAt         time.Time `gorm:"not null;default:current_timestamp"`
}

func (TranslatedMessage) TableName() string {
	return "translated_messages"
}

// TranslationPair is a previously published original/translation pair, used
// as style reference for new translations.
type TranslationPair struct {
	OriginalText    string
	TranslationText string
}
