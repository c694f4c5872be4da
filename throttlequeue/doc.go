/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package throttlequeue provides a client-side queue for calling rate-limited APIs.
//
// A Queue admits request functions synchronously against a rate window
// (60 requests per minute by default), runs at most MaxConcurrent of them
// at the same time in FIFO order, and pauses for a randomized delay after
// each settlement before dispatching more. Requests over the window cap are
// rejected immediately with *RateLimitExceededError and are never executed.
//
// The queue deliberately does not retry, does not impose timeouts, and does
// not cancel running functions; combine it with the retry package for
// caller-side retries.
package throttlequeue
