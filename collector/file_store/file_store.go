package file_store

import (
	"fmt"
	"io"
	"time"
)

// FileStore keeps raw payloads and dumps for later replay and debugging.
type FileStore interface {
	// Store writes body under key and returns the key actually used.
	Store(key string, body io.Reader) (string, error)
	GetUrlFromKey(key string) string
	CleanUp()
}

// WebhookPayloadKey groups archived webhook bodies by UTC day.
func WebhookPayloadKey(receivedAt time.Time, batchId string) string {
	return fmt.Sprintf("webhook/%s/%s.json", receivedAt.UTC().Format("2006-01-02"), batchId)
}

// DumpKey names a tweet dump produced by the CLI.
func DumpKey(createdAt time.Time, name string) string {
	if name == "" {
		name = "tweets"
	}
	return fmt.Sprintf("dumps/%s_%s.json", name, createdAt.UTC().Format("20060102_150405"))
}
