package twitter

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCRCResponse(t *testing.T) {
	assert.Equal(t, "sha256=s4cxxN5ol0nZgTtEZ7GRmypYgnemVdna22Ti5mlfpmQ=", CRCResponse("test-consumer-secret", "abc"))
}

func TestCRCHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/webhook/twitter", NewCRCHandler("test-consumer-secret"))

	t.Run("answers challenge", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/webhook/twitter?crc_token=abc", nil)
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var body map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, CRCResponse("test-consumer-secret", "abc"), body[ResponseToken])
	})

	t.Run("missing token", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/webhook/twitter", nil)
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
