package exception

import "errors"

// Error class names for the backfill taxonomy. Each maps to a sentinel
// error so classification survives wrapping (errors.Is).
const (
	// AuthException indicates the run cannot proceed without interactive re-login.
	AuthException = "AuthException"
	// FetchException indicates a transient network/server fault while fetching a bucket.
	FetchException = "FetchException"
	// SchemaException indicates an API response missing expected fields.
	SchemaException = "SchemaException"
	// WriteException indicates a local filesystem fault while persisting a bucket.
	WriteException = "WriteException"
)

// Sentinel errors for the backfill taxonomy.
var (
	ErrAuth   = errors.New(AuthException)
	ErrFetch  = errors.New(FetchException)
	ErrSchema = errors.New(SchemaException)
	ErrWrite  = errors.New(WriteException)
)

// wrapSentinel joins the sentinel with the original error, if any,
// so both errors.Is(err, sentinel) and Unwrap chains work.
func wrapSentinel(sentinel, originalErr error) error {
	if originalErr != nil {
		return errors.Join(sentinel, originalErr)
	}
	return sentinel
}

// NewAuthError creates a BatchError for an authorization failure.
// Auth failures are fatal to the run: neither retryable nor skippable.
//
// module: The module where the error occurred.
// message: The error message.
// originalErr: The original error to wrap.
func NewAuthError(module, message string, originalErr error) *BatchError {
	return NewBatchError(module, message, wrapSentinel(ErrAuth, originalErr), false, false)
}

// NewFetchError creates a BatchError for a transient fetch failure.
// Fetch failures are retried with backoff; once the attempt ceiling is
// exhausted the bucket is skipped and the sweep continues.
//
// module: The module where the error occurred.
// message: The error message.
// originalErr: The original error to wrap.
func NewFetchError(module, message string, originalErr error) *BatchError {
	return NewBatchError(module, message, wrapSentinel(ErrFetch, originalErr), true, true)
}

// NewSchemaError creates a BatchError for a malformed API response.
// Schema failures are skippable but never retried, since retrying will
// not change the upstream schema.
//
// module: The module where the error occurred.
// message: The error message.
// originalErr: The original error to wrap.
func NewSchemaError(module, message string, originalErr error) *BatchError {
	return NewBatchError(module, message, wrapSentinel(ErrSchema, originalErr), true, false)
}

// NewWriteError creates a BatchError for a local filesystem fault.
// Write failures are fatal: partial output integrity cannot be guaranteed otherwise.
//
// module: The module where the error occurred.
// message: The error message.
// originalErr: The original error to wrap.
func NewWriteError(module, message string, originalErr error) *BatchError {
	return NewBatchError(module, message, wrapSentinel(ErrWrite, originalErr), false, false)
}

// IsAuthError determines if an error indicates an authorization failure.
func IsAuthError(err error) bool {
	return err != nil && errors.Is(err, ErrAuth)
}

// IsFetchError determines if an error indicates a transient fetch failure.
func IsFetchError(err error) bool {
	return err != nil && errors.Is(err, ErrFetch)
}

// IsSchemaError determines if an error indicates a malformed API response.
func IsSchemaError(err error) bool {
	return err != nil && errors.Is(err, ErrSchema)
}

// IsWriteError determines if an error indicates a local filesystem fault.
func IsWriteError(err error) bool {
	return err != nil && errors.Is(err, ErrWrite)
}
