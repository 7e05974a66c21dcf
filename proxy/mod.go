// Package proxy defines the HTTP server that exposes the services of a
// development network under one address.
//
// Documentation Last Review: 11.08.2026
//
package proxy

import (
	"net"
	"net/http"
)

// Proxy defines the primitives of the HTTP server that handles the client
// side requests.
type Proxy interface {
	// Listen starts the server. This call is blocking until the server is
	// stopped.
	Listen() error

	// Stop stops the server.
	Stop()

	// GetAddr returns the address the server listens on, or nil if it is not
	// started yet.
	GetAddr() net.Addr

	// Mount serves the handler under the path prefix, which is stripped
	// before the handler sees the request.
	Mount(prefix string, handler http.Handler)
}
