/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package throttlequeue

import (
	"context"
	"fmt"
	"sync"

	"github.com/gitboycryptogeek/tassiac-sub000/log"
	"github.com/gitboycryptogeek/tassiac-sub000/lrucache"
)

// DefaultKeyedQueuesMaxKeys is the default maximum number of per-key queues kept alive.
const DefaultKeyedQueuesMaxKeys = 100

// KeyedQueues maintains a separate Queue per string key (for example, per tenant
// or per downstream endpoint), creating queues on demand and closing them when
// they are evicted from the underlying LRU storage.
//
// A queue evicted under key pressure aborts its pending requests with
// *QueueClosedError, so maxKeys should exceed the number of keys used at the same time.
type KeyedQueues[T any] struct {
	cfg  *Config
	opts Opts

	mu     sync.Mutex
	closed bool

	queues *lrucache.LRUCache[string, *Queue[T]]
}

// NewKeyedQueues creates a new KeyedQueues with the provided per-queue configuration.
// cfg applies to every created queue. If maxKeys is 0, DefaultKeyedQueuesMaxKeys is used.
func NewKeyedQueues[T any](cfg *Config, maxKeys int) (*KeyedQueues[T], error) {
	return NewKeyedQueuesWithOpts[T](cfg, maxKeys, Opts{})
}

// NewKeyedQueuesWithOpts is a version of NewKeyedQueues with an ability to specify optional parameters.
// Opts apply to every created queue; the logger is annotated with the queue's key.
func NewKeyedQueuesWithOpts[T any](cfg *Config, maxKeys int, opts Opts) (*KeyedQueues[T], error) {
	if cfg == nil {
		cfg = NewDefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	if maxKeys == 0 {
		maxKeys = DefaultKeyedQueuesMaxKeys
	}

	kq := &KeyedQueues[T]{cfg: cfg, opts: opts}
	queues, err := lrucache.NewWithOpts[string, *Queue[T]](maxKeys, nil, lrucache.Options[string, *Queue[T]]{
		OnEvict: func(_ string, q *Queue[T]) {
			_ = q.Close()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("new LRU storage for queues: %w", err)
	}
	kq.queues = queues
	return kq, nil
}

// Get returns the queue for the provided key, creating it on first use.
func (kq *KeyedQueues[T]) Get(key string) (*Queue[T], error) {
	q, err := kq.queues.GetOrAddCall(key, func() (*Queue[T], error) {
		opts := kq.opts
		if opts.Logger != nil {
			opts.Logger = opts.Logger.With(log.String("queue_key", key))
		}
		return NewWithOpts[T](kq.cfg, opts)
	})
	if err != nil {
		return nil, err
	}

	// A queue may be created concurrently with Close and miss the purge.
	kq.mu.Lock()
	closed := kq.closed
	kq.mu.Unlock()
	if closed {
		_ = q.Close()
		return nil, &QueueClosedError{}
	}
	return q, nil
}

// Enqueue admits fn into the queue for the provided key, creating the queue on first use.
func (kq *KeyedQueues[T]) Enqueue(key string, fn EnqueueFunc[T]) (*Result[T], error) {
	q, err := kq.Get(key)
	if err != nil {
		return nil, err
	}
	return q.Enqueue(fn)
}

// Do enqueues fn into the queue for the provided key and waits for its outcome.
func (kq *KeyedQueues[T]) Do(ctx context.Context, key string, fn EnqueueFunc[T]) (T, error) {
	q, err := kq.Get(key)
	if err != nil {
		var zero T
		return zero, err
	}
	return q.Do(ctx, fn)
}

// Close closes all per-key queues and stops creating new ones. It is idempotent.
func (kq *KeyedQueues[T]) Close() error {
	kq.mu.Lock()
	if kq.closed {
		kq.mu.Unlock()
		return nil
	}
	kq.closed = true
	kq.mu.Unlock()

	kq.queues.Purge()
	return nil
}
