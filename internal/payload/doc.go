// Package payload provides the override payloads and the store that serves
// them to the engine.
//
// Two payloads exist. The Selector routes destinations through the operator
// proxy: it answers proxy lookups for libraries that take a proxy function
// and dials tunnels for libraries that only take a dial function. HTTP
// proxies are tunnelled with CONNECT, SOCKS5 proxies through x/net/proxy.
// An optional circuit breaker fails proxied dials fast while the proxy is
// unreachable.
// The TrustContext is a TLS client configuration whose roots include the
// operator CA.
//
// Both payloads implement override.Adapter so a single value can be
// assigned to members of different types.
package payload
