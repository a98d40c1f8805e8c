// Package errors provides structured error handling for vecsync.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Corpus and chunking errors
//   - 3XX: Embedding errors
//   - 4XX: Vector index errors
//   - 5XX: Registry errors
//   - 6XX: Internal and pass-level errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryCorpus indicates document source and chunking errors.
	CategoryCorpus Category = "CORPUS"
	// CategoryEmbedding indicates embedding provider errors.
	CategoryEmbedding Category = "EMBEDDING"
	// CategoryIndex indicates vector index errors.
	CategoryIndex Category = "INDEX"
	// CategoryRegistry indicates document registry storage errors.
	CategoryRegistry Category = "REGISTRY"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort the pass.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but the pass can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound     = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid      = "ERR_102_CONFIG_INVALID"
	ErrCodeMissingCredentials = "ERR_103_MISSING_CREDENTIALS"

	// Corpus and chunking errors (200-299)
	ErrCodeDocumentUnreadable = "ERR_201_DOCUMENT_UNREADABLE"
	ErrCodeContentMalformed   = "ERR_202_CONTENT_MALFORMED"
	ErrCodeDocumentTooLarge   = "ERR_203_DOCUMENT_TOO_LARGE"
	ErrCodeSourceUnavailable  = "ERR_204_SOURCE_UNAVAILABLE"
	ErrCodeChunkingFailed     = "ERR_205_CHUNKING_FAILED"

	// Embedding errors (300-399)
	ErrCodeEmbedRateLimited   = "ERR_301_EMBED_RATE_LIMITED"
	ErrCodeEmbedTransient     = "ERR_302_EMBED_TRANSIENT"
	ErrCodeEmbedInvalidInput  = "ERR_303_EMBED_INVALID_INPUT"
	ErrCodeEmbedUnavailable   = "ERR_304_EMBED_UNAVAILABLE"
	ErrCodeDimensionMismatch  = "ERR_305_DIMENSION_MISMATCH"

	// Index errors (400-499)
	ErrCodeIndexTimeout     = "ERR_401_INDEX_TIMEOUT"
	ErrCodeIndexTransient   = "ERR_402_INDEX_TRANSIENT"
	ErrCodeIndexQuota       = "ERR_403_INDEX_QUOTA"
	ErrCodeIndexNotFound    = "ERR_404_INDEX_NOT_FOUND"
	ErrCodeIndexUnavailable = "ERR_405_INDEX_UNAVAILABLE"
	ErrCodeIndexRejected    = "ERR_406_INDEX_REJECTED"

	// Registry errors (500-599)
	ErrCodeRegistryUnavailable = "ERR_501_REGISTRY_UNAVAILABLE"
	ErrCodeRegistryCorrupt     = "ERR_502_REGISTRY_CORRUPT"
	ErrCodeRegistryIO          = "ERR_503_REGISTRY_IO"

	// Internal and pass errors (600-699)
	ErrCodeInternal   = "ERR_601_INTERNAL"
	ErrCodePassLocked = "ERR_602_PASS_LOCKED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Extract numeric portion (e.g., "301" from "ERR_301_EMBED_RATE_LIMITED")
	numStr := code[4:7]
	if len(numStr) < 1 {
		return CategoryInternal
	}

	switch numStr[0] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryCorpus
	case '3':
		return CategoryEmbedding
	case '4':
		return CategoryIndex
	case '5':
		return CategoryRegistry
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	// Errors that abort the whole pass: registry storage failure, total
	// unavailability of a required dependency, or a concurrent pass.
	switch code {
	case ErrCodeRegistryUnavailable, ErrCodeRegistryCorrupt, ErrCodeRegistryIO,
		ErrCodeEmbedUnavailable, ErrCodeIndexUnavailable,
		ErrCodeSourceUnavailable, ErrCodePassLocked:
		return SeverityFatal
	}

	// Retryable errors get warning severity
	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeEmbedRateLimited, ErrCodeEmbedTransient,
		ErrCodeIndexTimeout, ErrCodeIndexTransient:
		return true
	default:
		return false
	}
}
