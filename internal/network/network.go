// Package network provides LAN address discovery and client IP extraction.
package network

import (
	"net"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
)

var log = logrus.New()

// SetLogger replaces the package-level logger.
func SetLogger(l *logrus.Logger) { log = l }

// LocalIP returns the LAN-visible IPv4 address of this host. The address
// is handed to pairing clients alongside generated codes, so loopback is
// only returned when nothing better exists.
func LocalIP() string {
	// Dialing a UDP address performs no I/O but makes the kernel pick
	// the outbound interface for us.
	if conn, err := net.Dial("udp", "8.8.8.8:80"); err == nil {
		defer conn.Close()
		if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok && !addr.IP.IsLoopback() {
			return addr.IP.String()
		}
	}

	addrs, err := net.InterfaceAddrs()
	if err != nil {
		log.Warnf("Failed to enumerate interfaces: %v", err)
		return "127.0.0.1"
	}
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok || ipnet.IP.IsLoopback() {
			continue
		}
		if ip4 := ipnet.IP.To4(); ip4 != nil {
			return ip4.String()
		}
	}
	return "127.0.0.1"
}

// GetClientIP extracts the client IP from an HTTP request, checking proxy headers.
func GetClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
