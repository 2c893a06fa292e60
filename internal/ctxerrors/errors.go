// Package ctxerrors defines the error taxonomy shared by the context
// assembly engine's entry points (assemble, search). Internal helpers may
// return ad-hoc wrapped errors; assemble/search translate them to one of
// these sentinels before returning to the caller.
package ctxerrors

import "errors"

var (
	// ErrInvalidRequest is caller misuse: empty query, budget too low,
	// unknown strategy. Not retryable.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrInvalidQuery is a parser-detected malformed query.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrStorageUnavailable is a repository I/O failure. Fatal to the
	// current request; never retried inside the core.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrEmbeddingUnavailable means the semantic backend is down. Callers
	// that can degrade (continue without semantic signal) should recover
	// this locally rather than propagate it.
	ErrEmbeddingUnavailable = errors.New("embedding provider unavailable")

	// ErrTimeout is returned when an external call exceeds its deadline.
	ErrTimeout = errors.New("operation timed out")

	// ErrCacheFailure is internal only — the cache never returns it to a
	// caller; it is logged and treated as a miss/skipped set.
	ErrCacheFailure = errors.New("cache operation failed")

	// ErrSearchUnavailable means both the FTS and semantic sources failed.
	ErrSearchUnavailable = errors.New("search unavailable")
)
