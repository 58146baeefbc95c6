package payload

import (
	"net"
	"net/netip"
	"strings"
)

// bypassList decides which destinations are dialed directly instead of
// through the proxy.
//
// Entries are matched case-insensitively:
//
//	*                 every destination
//	10.0.0.0/8        addresses inside the prefix
//	10.1.2.3          the address
//	example.com       the host and its subdomains
//	.example.com      subdomains of example.com only
//	example.com:8443  the host and its subdomains on port 8443
//
// Unlike the environment based proxy configuration, loopback addresses are
// proxied unless listed.
type bypassList struct {
	all      bool
	prefixes []netip.Prefix
	domains  []domainMatch
}

type domainMatch struct {
	host       string
	port       string
	subdomains bool
	exact      bool
}

func (m domainMatch) match(host, port string) bool {
	if m.port != "" && m.port != port {
		return false
	}
	if m.exact && host == m.host {
		return true
	}
	return m.subdomains && strings.HasSuffix(host, "."+m.host)
}

func parseBypassList(entries []string) *bypassList {
	b := &bypassList{}
	for _, raw := range entries {
		entry := strings.ToLower(strings.TrimSpace(raw))
		if entry == "" {
			continue
		}
		if entry == "*" {
			b.all = true
			continue
		}
		if p, err := netip.ParsePrefix(entry); err == nil {
			b.prefixes = append(b.prefixes, p.Masked())
			continue
		}
		if a, err := netip.ParseAddr(strings.Trim(entry, "[]")); err == nil {
			b.prefixes = append(b.prefixes, netip.PrefixFrom(a.Unmap(), a.Unmap().BitLen()))
			continue
		}

		host, port := entry, ""
		if h, p, err := net.SplitHostPort(entry); err == nil {
			host, port = h, p
		}
		if a, err := netip.ParseAddr(host); err == nil && port == "" {
			b.prefixes = append(b.prefixes, netip.PrefixFrom(a, a.BitLen()))
			continue
		}

		m := domainMatch{port: port, subdomains: true, exact: true}
		switch {
		case strings.HasPrefix(host, "*."):
			host = host[2:]
			m.exact = false
		case strings.HasPrefix(host, "."):
			host = host[1:]
			m.exact = false
		}
		m.host = host
		if a, err := netip.ParseAddr(host); err == nil {
			m.host = a.String()
			m.subdomains = false
		}
		b.domains = append(b.domains, m)
	}
	return b
}

// bypass reports whether addr, a host or host:port, should be dialed
// directly.
func (b *bypassList) bypass(addr string) bool {
	if b == nil {
		return false
	}
	if b.all {
		return true
	}

	host, port := strings.ToLower(addr), ""
	if h, p, err := net.SplitHostPort(host); err == nil {
		host, port = h, p
	}
	host = strings.TrimSuffix(strings.Trim(host, "[]"), ".")
	if host == "" {
		return false
	}

	if a, err := netip.ParseAddr(host); err == nil {
		a = a.Unmap()
		for _, p := range b.prefixes {
			if p.Contains(a) {
				return true
			}
		}
		host = a.String()
	}

	for _, d := range b.domains {
		if d.match(host, port) {
			return true
		}
	}
	return false
}
