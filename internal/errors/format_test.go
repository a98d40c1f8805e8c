package errors

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatForCLI_BasicError(t *testing.T) {
	err := New(ErrCodeConfigNotFound, "config file 'vecsync.yaml' not found", nil)

	result := FormatForCLI(err)

	assert.Contains(t, result, "config file 'vecsync.yaml' not found")
	assert.Contains(t, result, "ERR_101_CONFIG_NOT_FOUND")
}

func TestFormatForCLI_WithSuggestion(t *testing.T) {
	err := New(ErrCodeEmbedUnavailable, "Ollama is not running", nil).
		WithSuggestion("Start Ollama with 'ollama serve' or switch embedding.provider to static")

	result := FormatForCLI(err)

	assert.Contains(t, result, "Hint:")
	assert.Contains(t, result, "ollama serve")
}

func TestFormatForCLI_StandardErrorIsWrapped(t *testing.T) {
	err := errors.New("something went wrong")

	result := FormatForCLI(err)

	assert.Contains(t, result, "something went wrong")
	assert.Contains(t, result, ErrCodeInternal)
}

func TestFormatForCLI_NilError(t *testing.T) {
	assert.Equal(t, "", FormatForCLI(nil))
}

func TestFormatJSON_AllFields(t *testing.T) {
	err := New(ErrCodeIndexQuota, "index quota exceeded", errors.New("429 from upstream")).
		WithDetail("document_id", "acts/patents.txt").
		WithSuggestion("Reduce batch size or upgrade the index plan")

	data, jerr := FormatJSON(err)
	require.NoError(t, jerr)

	var parsed map[string]any
	require.NoError(t, json.Unmarshal(data, &parsed))

	assert.Equal(t, "ERR_403_INDEX_QUOTA", parsed["code"])
	assert.Equal(t, "index quota exceeded", parsed["message"])
	assert.Equal(t, "INDEX", parsed["category"])
	assert.Equal(t, "429 from upstream", parsed["cause"])
	assert.Equal(t, false, parsed["retryable"])
}

func TestFormatForLog_SyncError(t *testing.T) {
	err := New(ErrCodeEmbedRateLimited, "throttled", nil).
		WithDetail("chunk_id", "4f2c9a1be0d37a55")

	attrs := FormatForLog(err)

	assert.Equal(t, "ERR_301_EMBED_RATE_LIMITED", attrs["error_code"])
	assert.Equal(t, "EMBEDDING", attrs["category"])
	assert.Equal(t, true, attrs["retryable"])
	assert.Equal(t, "4f2c9a1be0d37a55", attrs["detail_chunk_id"])
}

func TestFormatForLog_PlainError(t *testing.T) {
	attrs := FormatForLog(errors.New("plain"))

	assert.Equal(t, "plain", attrs["error"])
	assert.NotContains(t, attrs, "error_code")
}

func TestFormatForLog_NilError(t *testing.T) {
	assert.Nil(t, FormatForLog(nil))
}
