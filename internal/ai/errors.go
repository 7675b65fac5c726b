package ai

import "errors"

// ErrCompletion marks any failure of the completion provider: transport
// error, timeout, non-200 status, malformed or empty response. Callers map it
// to a user-visible fallback instead of surfacing the raw error.
var ErrCompletion = errors.New("ai: completion failed")
