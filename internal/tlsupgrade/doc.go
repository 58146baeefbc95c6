// Package tlsupgrade provides client and server strategies for upgrading
// an established connection to TLS.
//
// ClientStrategy verifies the peer with its TLSConfig; the override engine
// targets its TLSConfig field so upgrades trust the operator CA. The server
// variant is never rewritten.
package tlsupgrade
