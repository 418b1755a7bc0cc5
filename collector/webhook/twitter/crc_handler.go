// Implement Twitter CRC challenge according to
// https://developer.twitter.com/en/docs/twitter-api/enterprise/account-activity-api/guides/securing-webhooks
package twitter

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	CrcToken      = "crc_token"
	ResponseToken = "response_token"
)

// NewCRCHandler encodes the challenge using HMAC SHA256 with the incoming
// token and the consumer secret.
func NewCRCHandler(consumerSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query(CrcToken)
		if token == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing " + CrcToken})
			return
		}
		c.JSON(http.StatusOK, gin.H{ResponseToken: CRCResponse(consumerSecret, token)})
	}
}

func CRCResponse(consumerSecret, token string) string {
	h := hmac.New(sha256.New, []byte(consumerSecret))
	h.Write([]byte(token))
	return "sha256=" + base64.StdEncoding.EncodeToString(h.Sum(nil))
}
