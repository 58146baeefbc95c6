package payload

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"reflect"
)

// TrustOptions configures a TrustContext.
type TrustOptions struct {
	// CAPEM holds the operator CA certificates.
	CAPEM []byte
	// IncludeSystemRoots adds the host's trusted roots to the pool.
	IncludeSystemRoots bool
	// MinVersion is the minimum TLS version, for example "TLS12".
	MinVersion string
}

// TrustContext is the trusting TLS context payload. Its pool trusts the
// operator CA and, optionally, the system roots.
type TrustContext struct {
	config  *tls.Config
	pool    *x509.CertPool
	anchors []*x509.Certificate
}

// NewTrustContext builds a trust context from opts.
func NewTrustContext(opts TrustOptions) (*TrustContext, error) {
	minVersion, err := parseTLSVersion(opts.MinVersion)
	if err != nil {
		return nil, fmt.Errorf("invalid minVersion: %w", err)
	}

	pool := x509.NewCertPool()
	if opts.IncludeSystemRoots {
		system, err := x509.SystemCertPool()
		if err != nil {
			return nil, fmt.Errorf("failed to load system roots: %w", err)
		}
		pool = system
	}

	anchors, err := parseCertificates(opts.CAPEM)
	if err != nil {
		return nil, err
	}
	for _, cert := range anchors {
		pool.AddCert(cert)
	}
	if len(anchors) == 0 && !opts.IncludeSystemRoots {
		return nil, ErrNoTrustAnchors
	}

	cfg := &tls.Config{
		RootCAs:    pool,
		MinVersion: minVersion,
	}
	if minVersion < tls.VersionTLS13 {
		cfg.CipherSuites = secureCipherSuites()
	}

	return &TrustContext{config: cfg, pool: pool, anchors: anchors}, nil
}

// Config returns a copy of the TLS client configuration.
func (t *TrustContext) Config() *tls.Config {
	return t.config.Clone()
}

// Pool returns the root certificate pool.
func (t *TrustContext) Pool() *x509.CertPool {
	return t.pool
}

// Anchors returns the operator CA certificates.
func (t *TrustContext) Anchors() []*x509.Certificate {
	return t.anchors
}

var (
	tlsConfigType = reflect.TypeOf((*tls.Config)(nil))
	certPoolType  = reflect.TypeOf((*x509.CertPool)(nil))
)

// Adapt presents the trust context as a *tls.Config, always a fresh copy
// so components cannot mutate the shared configuration, or as the
// *x509.CertPool.
func (t *TrustContext) Adapt(typ reflect.Type) (any, bool) {
	switch typ {
	case tlsConfigType:
		return t.Config(), true
	case certPoolType:
		return t.pool, true
	default:
		return nil, false
	}
}

func parseCertificates(data []byte) ([]*x509.Certificate, error) {
	var certs []*x509.Certificate
	for len(data) > 0 {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse CA certificate: %w", err)
		}
		certs = append(certs, cert)
	}
	if len(data) > 0 && len(certs) == 0 {
		return nil, fmt.Errorf("failed to parse CA certificate: no PEM certificate found")
	}
	return certs, nil
}

// parseTLSVersion parses a TLS version string to the corresponding constant.
func parseTLSVersion(version string) (uint16, error) {
	switch version {
	case "TLS10":
		return tls.VersionTLS10, nil
	case "TLS11":
		return tls.VersionTLS11, nil
	case "TLS12", "":
		return tls.VersionTLS12, nil
	case "TLS13":
		return tls.VersionTLS13, nil
	default:
		return 0, fmt.Errorf("unknown TLS version: %s", version)
	}
}

// secureCipherSuites returns the TLS 1.2 cipher suites the trust context
// allows. TLS 1.3 suites are managed by Go and cannot be configured.
func secureCipherSuites() []uint16 {
	return []uint16{
		tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
		tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
		tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
		tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
		tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256,
		tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256,
	}
}
