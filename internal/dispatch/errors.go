package dispatch

import "errors"

// ErrNoIdentity means the batch owner has no usable sending configuration.
// Terminal for the whole batch; retrying cannot help until settings change.
var ErrNoIdentity = errors.New("no sending identity configured for batch owner")

// ErrConnectExhausted means the relay connection could not be established
// within the worker's retry budget.
var ErrConnectExhausted = errors.New("relay connection retries exhausted")
