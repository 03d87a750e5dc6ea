package adapter

import (
	"context"

	"github.com/marmos91/dittodav/pkg/dav"
)

// Adapter is a protocol front end managed by DittoServer.
//
// Lifecycle:
//  1. Creation with protocol-specific configuration
//  2. SetServer injects the shared WebDAV server
//  3. Serve starts listening and blocks until shutdown
//  4. Stop initiates graceful shutdown
//
// Thread safety:
// Implementations must be safe for concurrent use. SetServer is called once
// before Serve, but Stop may be called concurrently with Serve.
type Adapter interface {
	// Serve starts the server and blocks until ctx is cancelled or an
	// unrecoverable error occurs. On cancellation it shuts down gracefully
	// and returns nil.
	//
	// If Serve returns before ctx is cancelled, DittoServer treats it as a
	// fatal error and stops every other component.
	Serve(ctx context.Context) error

	// SetServer injects the request handler shared by all adapters.
	SetServer(srv *dav.Server)

	// Stop initiates graceful shutdown. It must be idempotent and respect
	// the ctx deadline.
	Stop(ctx context.Context) error

	// Protocol returns the protocol name used in logs and metrics.
	Protocol() string

	// Port returns the configured listening port.
	Port() int
}
