/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package lrucache provides a generic in-memory cache with LRU eviction,
// optional per-entry TTL, an eviction callback for releasing resources
// held by cached values, and Prometheus metrics.
package lrucache
