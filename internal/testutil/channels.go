// Package testutil provides shared helpers for tests that wait on background
// goroutines.
package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// DefaultTestTimeout bounds every wait on a background goroutine.
const DefaultTestTimeout = 5 * time.Second

// WaitForChannel waits for ch to receive or close, failing the test after timeout.
func WaitForChannel(t *testing.T, ch <-chan struct{}, timeout time.Duration, msg string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(timeout):
		require.FailNow(t, msg)
	}
}

// WaitForResult waits for the value a goroutine reports on ch.
func WaitForResult[T any](t *testing.T, ch <-chan T, timeout time.Duration, msg string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(timeout):
		require.FailNow(t, msg)
	}
	var zero T
	return zero
}
