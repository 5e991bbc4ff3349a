//go:build !unix

package util

import (
	"net"
	"syscall"
)

func controlReuseAddr(network, address string, c syscall.RawConn) error {
	return nil
}

// InheritedListeners always reports no inherited sockets on this platform.
func InheritedListeners() ([]net.Listener, error) {
	return nil, nil
}
