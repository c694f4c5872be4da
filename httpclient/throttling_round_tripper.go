/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/vasayxtx/go-glob"

	"github.com/gitboycryptogeek/tassiac-sub000/log"
	"github.com/gitboycryptogeek/tassiac-sub000/throttlequeue"
)

// ThrottlingRoundTripperOpts represents options for ThrottlingRoundTripper.
type ThrottlingRoundTripperOpts struct {
	// Logger is passed to the zone queues for logging dispatch events.
	Logger log.FieldLogger

	// QueueMetricsProvider returns a metrics collector for the zone's queue.
	// Typically it curries a shared throttlequeue.PrometheusMetrics with the zone name.
	// Metrics collection is disabled if not set.
	QueueMetricsProvider func(zone string) throttlequeue.MetricsCollector
}

type throttlingRule struct {
	name      string
	zone      string
	queue     *throttlequeue.Queue[*http.Response]
	methods   map[string]struct{}
	matchPath []func(s string) bool
}

func (tr *throttlingRule) matches(r *http.Request) bool {
	if len(tr.methods) != 0 {
		if _, ok := tr.methods[r.Method]; !ok {
			return false
		}
	}
	for i := range tr.matchPath {
		if tr.matchPath[i](r.URL.Path) {
			return true
		}
	}
	return false
}

// ThrottlingRoundTripper wraps an object that implements http.RoundTripper interface
// and sends matched requests through per-zone throttle queues.
// A request whose route matches one of the configured rules is enqueued into
// the rule's zone queue and executed when the queue dispatches it;
// all other requests are passed to the delegate directly.
//
// The zone queues own background goroutines, so the round tripper should be
// closed with Close when it is no longer needed.
type ThrottlingRoundTripper struct {
	// Delegate is the transport the request is handed to next.
	Delegate http.RoundTripper

	zones map[string]*throttlequeue.Queue[*http.Response]
	rules []*throttlingRule

	closeOnce sync.Once
	closeErr  error
}

// NewThrottlingRoundTripper creates a new ThrottlingRoundTripper with the given zones and rules.
func NewThrottlingRoundTripper(delegate http.RoundTripper, cfg *ThrottlingConfig) (*ThrottlingRoundTripper, error) {
	return NewThrottlingRoundTripperWithOpts(delegate, cfg, ThrottlingRoundTripperOpts{})
}

// NewThrottlingRoundTripperWithOpts creates a new ThrottlingRoundTripper with the given zones, rules and options.
func NewThrottlingRoundTripperWithOpts(
	delegate http.RoundTripper, cfg *ThrottlingConfig, opts ThrottlingRoundTripperOpts,
) (*ThrottlingRoundTripper, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate throttling config: %w", err)
	}

	zones := make(map[string]*throttlequeue.Queue[*http.Response], len(cfg.Zones))
	closeZones := func() {
		for _, q := range zones {
			_ = q.Close()
		}
	}
	for zoneName, zoneCfg := range cfg.Zones {
		queueOpts := throttlequeue.Opts{Logger: opts.Logger}
		if opts.QueueMetricsProvider != nil {
			queueOpts.MetricsCollector = opts.QueueMetricsProvider(zoneName)
		}
		q, err := throttlequeue.NewWithOpts[*http.Response](zoneCfg, queueOpts)
		if err != nil {
			closeZones()
			return nil, fmt.Errorf("create queue for zone %q: %w", zoneName, err)
		}
		zones[zoneName] = q
	}

	rules := make([]*throttlingRule, 0, len(cfg.Rules))
	for i := range cfg.Rules {
		ruleCfg := &cfg.Rules[i]
		rule := &throttlingRule{
			name:      ruleCfg.Name(),
			zone:      ruleCfg.Zone,
			queue:     zones[ruleCfg.Zone],
			matchPath: make([]func(s string) bool, 0, len(ruleCfg.Routes)),
		}
		for _, route := range ruleCfg.Routes {
			rule.matchPath = append(rule.matchPath, glob.Compile(route))
		}
		if len(ruleCfg.Methods) != 0 {
			rule.methods = make(map[string]struct{}, len(ruleCfg.Methods))
			for _, method := range ruleCfg.Methods {
				rule.methods[strings.ToUpper(method)] = struct{}{}
			}
		}
		rules = append(rules, rule)
	}

	return &ThrottlingRoundTripper{Delegate: delegate, zones: zones, rules: rules}, nil
}

// RoundTrip sends the request through the matched rule's zone queue.
// Requests that match no rule are passed to the delegate directly.
//
// Queue rejections (rate limit exceeded, queue full, queue closed) are returned
// as *ThrottlingError wrapping the queue error. If the request context is canceled
// while the request waits in the queue, RoundTrip returns the context error;
// the queued attempt still dispatches but fails fast because the request
// carries the same canceled context.
func (rt *ThrottlingRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	rule := rt.matchRule(r)
	if rule == nil {
		return rt.Delegate.RoundTrip(r)
	}

	resp, err := rule.queue.Do(r.Context(), func(ctx context.Context) (*http.Response, error) {
		return rt.Delegate.RoundTrip(r)
	})
	if err != nil && isQueueError(err) {
		return nil, &ThrottlingError{Rule: rule.name, Zone: rule.zone, Inner: err}
	}
	return resp, err
}

func (rt *ThrottlingRoundTripper) matchRule(r *http.Request) *throttlingRule {
	for i := range rt.rules {
		if rt.rules[i].matches(r) {
			return rt.rules[i]
		}
	}
	return nil
}

// Close closes all zone queues and releases their background goroutines. It is safe to call multiple times.
func (rt *ThrottlingRoundTripper) Close() error {
	rt.closeOnce.Do(func() {
		for zoneName, q := range rt.zones {
			if err := q.Close(); err != nil && rt.closeErr == nil {
				rt.closeErr = fmt.Errorf("close queue for zone %q: %w", zoneName, err)
			}
		}
	})
	return rt.closeErr
}

func isQueueError(err error) bool {
	var rateLimitErr *throttlequeue.RateLimitExceededError
	var queueFullErr *throttlequeue.QueueFullError
	var queueClosedErr *throttlequeue.QueueClosedError
	return errors.As(err, &rateLimitErr) || errors.As(err, &queueFullErr) || errors.As(err, &queueClosedErr)
}

// ThrottlingError is returned in RoundTrip method of ThrottlingRoundTripper
// when the request is rejected by the matched zone's queue.
type ThrottlingError struct {
	// Rule is the name of the matched throttling rule.
	Rule string

	// Zone is the name of the throttle zone that rejected the request.
	Zone string

	// Inner is the queue rejection error
	// (*throttlequeue.RateLimitExceededError, *throttlequeue.QueueFullError or *throttlequeue.QueueClosedError).
	Inner error
}

func (e *ThrottlingError) Error() string {
	return fmt.Sprintf("throttling zone %q: %s", e.Zone, e.Inner.Error())
}

// Unwrap exposes the wrapped error to errors.Is and errors.As.
func (e *ThrottlingError) Unwrap() error {
	return e.Inner
}
