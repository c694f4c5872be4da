/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import (
	"errors"
	"net"
	"strconv"
	"time"
)

// GetLocalFreeTCPPort returns a TCP port on the 127.0.0.1 interface that nobody is listening on.
func GetLocalFreeTCPPort() int {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		panic(err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	if err := ln.Close(); err != nil {
		panic(err)
	}
	return port
}

// GetLocalAddrWithFreeTCPPort returns a 127.0.0.1:<free-tcp-port> address.
func GetLocalAddrWithFreeTCPPort() string {
	return net.JoinHostPort("127.0.0.1", strconv.Itoa(GetLocalFreeTCPPort()))
}

// WaitListeningServer waits until a server accepts TCP connections on the passed address.
func WaitListeningServer(addr string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if conn, err := net.DialTimeout("tcp", addr, time.Second); err == nil {
			return conn.Close()
		}
		if time.Now().After(deadline) {
			return errors.New("server did not start listening in time")
		}
		time.Sleep(time.Millisecond * 10)
	}
}
