// Package catalog holds the built-in transformer rules, one per supported
// HTTP client family, and converts configuration-defined rules.
//
// The built-in families cover net/http transports and proxy configuration,
// the three fasthttp clients, gorilla/websocket dialers and the client TLS
// upgrade strategy. Each rule targets the fields a client reads its proxy
// and trust settings from, and the entry points through which requests are
// made.
package catalog
