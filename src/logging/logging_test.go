package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func restErr(status, code int) error {
	return &discordgo.RESTError{
		Response: &http.Response{StatusCode: status},
		Message:  &discordgo.APIErrorMessage{Code: code, Message: "x"},
	}
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(restErr(http.StatusNotFound, discordgo.ErrCodeUnknownMessage)))
	assert.True(t, IsNotFound(fmt.Errorf("edit: %w", restErr(http.StatusBadRequest, discordgo.ErrCodeUnknownMember))))
	assert.True(t, IsNotFound(&discordgo.RESTError{Response: &http.Response{StatusCode: http.StatusNotFound}}))
	assert.False(t, IsNotFound(restErr(http.StatusForbidden, 50013)))
	assert.False(t, IsNotFound(errors.New("404")))
	assert.False(t, IsNotFound(nil))
}

func TestIsRateLimit(t *testing.T) {
	assert.True(t, IsRateLimit(&discordgo.RateLimitError{RateLimit: &discordgo.RateLimit{URL: "u"}}))
	assert.True(t, IsRateLimit(restErr(http.StatusTooManyRequests, 0)))
	assert.True(t, IsRateLimit(errors.New("HTTP 429 Too Many Requests")))
	assert.False(t, IsRateLimit(restErr(http.StatusNotFound, discordgo.ErrCodeUnknownMessage)))
	assert.False(t, IsRateLimit(nil))
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, false).Debug("hidden")
	assert.Zero(t, buf.Len())

	New(&buf, true).With("component", "test").Debug("shown", "n", 1)
	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "shown", rec["msg"])
	assert.Equal(t, "test", rec["component"])
	assert.Contains(t, rec, "source")
}
