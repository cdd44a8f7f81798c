// Package validate holds input checks shared by the server handlers.
// Everything here runs before any daemon call so bad input never leaves
// the panel.
package validate

import (
	"net"
	"strings"
)

// dangerousChars are shell metacharacters and control bytes that must
// never appear in a value forwarded to the daemon.
var dangerousChars = []string{";", "|", "&", "`", "$", "(", ")", "<", ">", "\n", "\r", "\t", "\x00"}

// ContainsDangerousChars reports whether s holds any character that could
// be used for command injection on the daemon side.
func ContainsDangerousChars(s string) bool {
	for _, c := range dangerousChars {
		if strings.Contains(s, c) {
			return true
		}
	}
	return false
}

// IsValidIPOrCIDR accepts a plain IPv4/IPv6 address or a CIDR block with a
// sane prefix length (at most /32 for v4, /128 for v6).
func IsValidIPOrCIDR(s string) bool {
	if s == "" {
		return false
	}
	if !strings.Contains(s, "/") {
		return net.ParseIP(s) != nil
	}
	ip, ipNet, err := net.ParseCIDR(s)
	if err != nil || ipNet == nil {
		return false
	}
	ones, bits := ipNet.Mask.Size()
	if ip.To4() != nil {
		return bits == 32 && ones >= 0 && ones <= 32
	}
	return bits == 128 && ones >= 0 && ones <= 128
}

// IsValidPort reports whether p is a usable TCP/UDP port number.
func IsValidPort(p int) bool {
	return p >= 1 && p <= 65535
}

// IsValidPriority bounds firewall rule priorities.
func IsValidPriority(p int) bool {
	return p >= 0 && p <= 10000
}

// IsValidDomain checks a hostname for proxy use: at most 253 characters,
// at least one dot, each label 1 to 63 characters of letters, digits or
// hyphens, with no label starting or ending in a hyphen.
func IsValidDomain(s string) bool {
	if s == "" || len(s) > 253 {
		return false
	}
	if !strings.Contains(s, ".") {
		return false
	}
	for _, label := range strings.Split(s, ".") {
		if len(label) < 1 || len(label) > 63 {
			return false
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return false
		}
		for _, r := range label {
			if !isAlnum(r) && r != '-' {
				return false
			}
		}
	}
	return true
}

// internalIPs are loopback/wildcard values the daemon reports for local
// binds. Handlers substitute the node's public address for these before
// storing anything user facing.
var internalIPs = map[string]bool{
	"127.0.0.1": true,
	"0.0.0.0":   true,
	"localhost": true,
	"::1":       true,
}

// IsInternalIP reports whether s is a loopback or wildcard bind address.
func IsInternalIP(s string) bool {
	return internalIPs[s]
}

func isAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
