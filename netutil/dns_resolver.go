/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package netutil provides small networking helpers.
package netutil

import (
	"context"
	"net"
	"sync/atomic"
	"time"
)

// NewCustomDNSResolver creates a net.Resolver that sends DNS queries to the passed
// nameserver addresses (host:port) instead of the ones from the system configuration.
// Queries are spread over the nameservers in a round-robin manner.
//
// It's useful when internal service names, such as the bank gateway hostname,
// are only known to dedicated resolvers:
//
//	resolver := netutil.NewCustomDNSResolver([]string{"10.0.0.2:53", "10.0.0.3:53"}, time.Second*5)
//	dialer := &net.Dialer{Resolver: &resolver}
//	transport := &http.Transport{DialContext: dialer.DialContext}
//	client := &http.Client{Transport: transport}
//	resp, err := client.Get("https://bank-api.payments.consul/api/balance")
func NewCustomDNSResolver(addrs []string, timeout time.Duration) net.Resolver {
	var next uint32
	count := uint32(len(addrs)) //nolint:gosec // nameserver count is small

	return net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, address string) (net.Conn, error) {
			d := net.Dialer{Timeout: timeout}
			addr := addrs[atomic.AddUint32(&next, 1)%count]
			return d.DialContext(ctx, "udp", addr)
		},
	}
}
