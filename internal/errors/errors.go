package errors

import (
	"fmt"
)

// SyncError is the structured error type for vecsync.
// It provides rich context for error handling, logging, and user presentation.
type SyncError struct {
	// Code is the unique error code (e.g., "ERR_301_EMBED_RATE_LIMITED").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, Corpus, Embedding, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *SyncError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *SyncError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with SyncError.
func (e *SyncError) Is(target error) bool {
	if t, ok := target.(*SyncError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *SyncError) WithDetail(key, value string) *SyncError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
// Returns the error for method chaining.
func (e *SyncError) WithSuggestion(suggestion string) *SyncError {
	e.Suggestion = suggestion
	return e
}

// New creates a new SyncError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *SyncError {
	return &SyncError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a SyncError from an existing error.
// The error's message becomes the SyncError message.
func Wrap(code string, err error) *SyncError {
	if err == nil {
		return nil
	}
	if se, ok := err.(*SyncError); ok && se.Code == code {
		return se
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *SyncError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// CorpusError creates a per-document read error.
// The affected document is skipped and reported; siblings are unaffected.
func CorpusError(message string, cause error) *SyncError {
	return New(ErrCodeDocumentUnreadable, message, cause)
}

// CorpusUnavailable creates a fatal source-unavailable error.
func CorpusUnavailable(message string, cause error) *SyncError {
	return New(ErrCodeSourceUnavailable, message, cause)
}

// ChunkingError creates a chunking-related error.
// The affected document is skipped and reported; siblings are unaffected.
func ChunkingError(message string, cause error) *SyncError {
	return New(ErrCodeChunkingFailed, message, cause)
}

// EmbeddingError creates a transient embedding error. Transient embedding
// failures are retried with backoff before the chunk is marked failed.
func EmbeddingError(message string, cause error) *SyncError {
	return New(ErrCodeEmbedTransient, message, cause)
}

// IndexError creates a transient vector index error.
func IndexError(message string, cause error) *SyncError {
	return New(ErrCodeIndexTransient, message, cause)
}

// RegistryError creates a registry storage error.
// Registry errors abort the pass; the diff is idempotent so a full retry is safe.
func RegistryError(message string, cause error) *SyncError {
	return New(ErrCodeRegistryUnavailable, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *SyncError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable checks if an error is retryable.
// Returns true if the error is a SyncError with Retryable flag set.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if se, ok := err.(*SyncError); ok {
		return se.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors abort the whole reindexing pass.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if se, ok := err.(*SyncError); ok {
		return se.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from a SyncError.
// Returns empty string if not a SyncError.
func GetCode(err error) string {
	if se, ok := err.(*SyncError); ok {
		return se.Code
	}
	return ""
}

// GetCategory extracts the category from a SyncError.
// Returns empty string if not a SyncError.
func GetCategory(err error) Category {
	if se, ok := err.(*SyncError); ok {
		return se.Category
	}
	return ""
}
