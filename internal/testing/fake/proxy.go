package fake

import (
	"net"
	"net/http"
	"sync"
)

// Proxy is a fake implementation of proxy.Proxy that records the mounted
// handlers.
type Proxy struct {
	sync.Mutex

	Mounts map[string]http.Handler
	Addr   net.Addr
	Err    error

	stopped bool
}

// NewProxy returns a fake proxy listening on a fake address.
func NewProxy() *Proxy {
	return &Proxy{
		Mounts: make(map[string]http.Handler),
		Addr:   &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 7070},
	}
}

// Listen implements proxy.Proxy.
func (p *Proxy) Listen() error {
	return p.Err
}

// Stop implements proxy.Proxy.
func (p *Proxy) Stop() {
	p.Lock()
	p.stopped = true
	p.Unlock()
}

// Stopped returns true if the proxy has been stopped.
func (p *Proxy) Stopped() bool {
	p.Lock()
	defer p.Unlock()

	return p.stopped
}

// GetAddr implements proxy.Proxy.
func (p *Proxy) GetAddr() net.Addr {
	return p.Addr
}

// Mount implements proxy.Proxy.
func (p *Proxy) Mount(prefix string, handler http.Handler) {
	p.Lock()
	p.Mounts[prefix] = handler
	p.Unlock()
}
