package util

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"syscall"
)

const (
	// ListenPidEnvKey and ListenFdsEnvKey carry socket-activation state (systemd protocol).
	ListenPidEnvKey = "LISTEN_PID"
	ListenFdsEnvKey = "LISTEN_FDS"

	// listenFdsStart is the first inherited descriptor number.
	listenFdsStart = 3
)

// CreateListener opens a stream listener on address with SO_REUSEADDR set
// where the platform supports it, so a restarted server can rebind while old
// connections sit in TIME_WAIT.
func CreateListener(ctx context.Context, network, address string) (net.Listener, error) {
	switch network {
	case "tcp", "tcp4", "tcp6":
	default:
		return nil, fmt.Errorf("unsupported network type: %s, only 'tcp', 'tcp4', or 'tcp6' are supported", network)
	}
	lc := net.ListenConfig{Control: controlReuseAddr}
	ln, err := lc.Listen(ctx, network, address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s %s: %w", network, address, err)
	}
	return ln, nil
}

// ParseListenFDs returns the inherited descriptor numbers described by the
// LISTEN_PID and LISTEN_FDS values. Nothing is inherited unless listenPid
// names the current process.
func ParseListenFDs(listenPid, listenFds string, pid int) ([]uintptr, error) {
	if listenPid == "" || listenFds == "" {
		return nil, nil
	}
	owner, err := strconv.Atoi(strings.TrimSpace(listenPid))
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", ListenPidEnvKey, listenPid, err)
	}
	if owner != pid {
		return nil, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(listenFds))
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", ListenFdsEnvKey, listenFds, err)
	}
	if n < 0 {
		return nil, fmt.Errorf("invalid negative %s value: %d", ListenFdsEnvKey, n)
	}
	fds := make([]uintptr, n)
	for i := range fds {
		fds[i] = uintptr(listenFdsStart + i)
	}
	return fds, nil
}

// IsAddrInUse reports whether err is an "address already in use" failure.
func IsAddrInUse(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.EADDRINUSE) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "address already in use")
}
