package logger

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// trustedProxies holds the parsed trusted_proxies entries.
type trustedProxies struct {
	prefixes []netip.Prefix
}

func parseTrustedProxies(entries []string) (trustedProxies, error) {
	var tp trustedProxies
	for _, raw := range entries {
		s := strings.TrimSpace(raw)
		if s == "" {
			continue
		}
		if strings.Contains(s, "/") {
			p, err := netip.ParsePrefix(s)
			if err != nil {
				return trustedProxies{}, fmt.Errorf("invalid CIDR string in trusted_proxies '%s': %w", s, err)
			}
			tp.prefixes = append(tp.prefixes, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(s)
		if err != nil {
			return trustedProxies{}, fmt.Errorf("invalid IP string in trusted_proxies '%s': %w", s, err)
		}
		addr = addr.Unmap()
		tp.prefixes = append(tp.prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return tp, nil
}

func (tp trustedProxies) contains(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, p := range tp.prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// realClientIP returns the address to log for a request. The real IP header
// is consulted only when the direct peer is a trusted proxy; its entries are
// walked right to left and the first untrusted address wins. A malformed
// entry falls back to the peer address.
func realClientIP(remoteAddr string, h http.Header, headerName string, tp trustedProxies) string {
	peer := remoteAddr
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		peer = host
	}
	peerAddr, err := netip.ParseAddr(peer)
	if err != nil {
		return peer
	}
	peer = peerAddr.Unmap().String()

	if headerName == "" || !tp.contains(peerAddr) {
		return peer
	}
	value := h.Get(headerName)
	if value == "" {
		return peer
	}

	parts := strings.Split(value, ",")
	for i := len(parts) - 1; i >= 0; i-- {
		s := strings.TrimSpace(parts[i])
		if s == "" {
			continue
		}
		addr, err := netip.ParseAddr(s)
		if err != nil {
			return peer
		}
		if !tp.contains(addr) {
			return addr.Unmap().String()
		}
	}
	return peer
}
