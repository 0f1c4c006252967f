// ABOUTME: Sentinel errors for the sender worker
// ABOUTME: Returned by Start and the transport implementations
package sender

import "errors"

var (
	// ErrBindFailed means the transport could not acquire a local endpoint.
	ErrBindFailed = errors.New("sender: failed to bind socket")

	// ErrNotBound means a send was attempted before Bind succeeded.
	ErrNotBound = errors.New("sender: transport not bound")
)
