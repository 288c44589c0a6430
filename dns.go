package main

import (
	"context"
	"net"
	"strings"
	"time"
)

// resolveHostname implements the reverse-DNS policy from SPEC_FULL.md
// section 4.3: resolve peer address -> name, then forward-resolve name back
// and require that one of the forward addresses equals the peer address;
// the name must also pass hostname validation. On success it returns the
// name; on any failure or mismatch it returns ok=false and the caller keeps
// the numeric address.
//
// No donor file in the reference pack implements this round-trip check
// (catbox's Hostname field is settable but the resolution routine itself was
// never present in the retrieved files); this is grounded directly on the
// spec's policy text, using stdlib net (no DNS/hostname validation library
// appears anywhere in the pack; see DESIGN.md).
func resolveHostname(ctx context.Context, resolver *net.Resolver, peer net.IP) (string, bool) {
	if resolver == nil {
		resolver = net.DefaultResolver
	}

	names, err := resolver.LookupAddr(ctx, peer.String())
	if err != nil || len(names) == 0 {
		return "", false
	}

	name := strings.TrimSuffix(names[0], ".")
	if !isValidHostname(name) {
		return "", false
	}

	addrs, err := resolver.LookupHost(ctx, name)
	if err != nil {
		return "", false
	}

	peerForCompare := ipForLog(peer)
	for _, addr := range addrs {
		if ipForLog(net.ParseIP(addr)) == peerForCompare {
			return name, true
		}
	}

	return "", false
}

// isValidHostname checks the glossary's "Valid hostname" policy: letters,
// digits, hyphens, dots; no leading/trailing hyphen in a label; overall
// length <= 253.
func isValidHostname(name string) bool {
	if len(name) == 0 || len(name) > 253 {
		return false
	}

	labels := strings.Split(name, ".")
	for _, label := range labels {
		if len(label) == 0 {
			return false
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return false
		}
		for i := 0; i < len(label); i++ {
			c := label[i]
			switch {
			case c >= 'a' && c <= 'z':
			case c >= 'A' && c <= 'Z':
			case c >= '0' && c <= '9':
			case c == '-':
			default:
				return false
			}
		}
	}

	return true
}

// dnsResolveTimeout bounds the rDNS round trip so a slow resolver cannot hold
// the registration lock open indefinitely.
const dnsResolveTimeout = 5 * time.Second
