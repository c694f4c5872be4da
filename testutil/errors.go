/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package testutil provides assertion helpers shared by tests across the module.
package testutil

import (
	"github.com/stretchr/testify/require"
)

// RequireNoErrorInChannel asserts that the buffered channel holds no error.
// A channel with nothing to receive passes as well.
func RequireNoErrorInChannel(t require.TestingT, c <-chan error, msgAndArgs ...interface{}) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	var err error
	select {
	case err = <-c:
	default:
	}
	require.NoError(t, err, msgAndArgs...)
}

type tHelper interface {
	Helper()
}
