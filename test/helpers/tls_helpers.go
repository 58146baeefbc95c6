// Package helpers provides common test utilities for the egress override tests.
package helpers

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestCertificates holds an operator CA and a server certificate it signed.
type TestCertificates struct {
	CAKey     *ecdsa.PrivateKey
	CACert    *x509.Certificate
	CACertPEM []byte

	ServerKey     *ecdsa.PrivateKey
	ServerCert    *x509.Certificate
	ServerCertPEM []byte
	ServerKeyPEM  []byte
}

// GenerateTestCertificates generates a CA and a server certificate valid
// for localhost, 127.0.0.1 and ::1.
func GenerateTestCertificates() (*TestCertificates, error) {
	tc := &TestCertificates{}

	if err := tc.generateCA(); err != nil {
		return nil, fmt.Errorf("failed to generate CA: %w", err)
	}

	if err := tc.generateServerCert(); err != nil {
		return nil, fmt.Errorf("failed to generate server certificate: %w", err)
	}

	return tc, nil
}

// MustGenerateTestCertificates generates test certificates or fails t.
func MustGenerateTestCertificates(t testing.TB) *TestCertificates {
	t.Helper()
	tc, err := GenerateTestCertificates()
	require.NoError(t, err)
	return tc
}

func serialNumber() (*big.Int, error) {
	return rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
}

// generateCA generates a CA certificate and key.
func (tc *TestCertificates) generateCA() error {
	caKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return fmt.Errorf("failed to generate CA key: %w", err)
	}
	tc.CAKey = caKey

	serial, err := serialNumber()
	if err != nil {
		return fmt.Errorf("failed to generate serial number: %w", err)
	}

	caTemplate := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{"Test Operator"},
			CommonName:   "Test Operator CA",
		},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		MaxPathLen:            1,
	}

	caCertDER, err := x509.CreateCertificate(rand.Reader, caTemplate, caTemplate, &caKey.PublicKey, caKey)
	if err != nil {
		return fmt.Errorf("failed to create CA certificate: %w", err)
	}

	caCert, err := x509.ParseCertificate(caCertDER)
	if err != nil {
		return fmt.Errorf("failed to parse CA certificate: %w", err)
	}
	tc.CACert = caCert
	tc.CACertPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: caCertDER})

	return nil
}

// generateServerCert generates a server certificate signed by the CA.
func (tc *TestCertificates) generateServerCert() error {
	serverKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return fmt.Errorf("failed to generate server key: %w", err)
	}
	tc.ServerKey = serverKey

	serial, err := serialNumber()
	if err != nil {
		return fmt.Errorf("failed to generate serial number: %w", err)
	}

	serverTemplate := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{"Test Server"},
			CommonName:   "localhost",
		},
		NotBefore:   time.Now().Add(-time.Hour),
		NotAfter:    time.Now().Add(24 * time.Hour),
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		KeyUsage:    x509.KeyUsageDigitalSignature,
		DNSNames:    []string{"localhost", "*.test"},
		IPAddresses: []net.IP{net.ParseIP("127.0.0.1"), net.ParseIP("::1")},
	}

	serverCertDER, err := x509.CreateCertificate(rand.Reader, serverTemplate, tc.CACert, &serverKey.PublicKey, tc.CAKey)
	if err != nil {
		return fmt.Errorf("failed to create server certificate: %w", err)
	}

	serverCert, err := x509.ParseCertificate(serverCertDER)
	if err != nil {
		return fmt.Errorf("failed to parse server certificate: %w", err)
	}
	tc.ServerCert = serverCert
	tc.ServerCertPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: serverCertDER})

	keyDER, err := x509.MarshalECPrivateKey(serverKey)
	if err != nil {
		return fmt.Errorf("failed to marshal server key: %w", err)
	}
	tc.ServerKeyPEM = pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})

	return nil
}

// WriteCA writes the CA certificate into dir and returns its path.
func (tc *TestCertificates) WriteCA(t testing.TB, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "ca.crt")
	require.NoError(t, os.WriteFile(path, tc.CACertPEM, 0o600))
	return path
}

// GetServerTLSConfig returns a TLS config presenting the server certificate.
func (tc *TestCertificates) GetServerTLSConfig() (*tls.Config, error) {
	cert, err := tls.X509KeyPair(tc.ServerCertPEM, tc.ServerKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to load server certificate: %w", err)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// GetClientTLSConfig returns a TLS config trusting only the CA.
func (tc *TestCertificates) GetClientTLSConfig() *tls.Config {
	caPool := x509.NewCertPool()
	caPool.AddCert(tc.CACert)

	return &tls.Config{
		RootCAs:    caPool,
		MinVersion: tls.VersionTLS12,
	}
}

// NewTLSServer starts an HTTPS test server presenting the server
// certificate. The server is closed when t finishes.
func (tc *TestCertificates) NewTLSServer(t testing.TB, handler http.Handler) *httptest.Server {
	t.Helper()

	cfg, err := tc.GetServerTLSConfig()
	require.NoError(t, err)

	srv := httptest.NewUnstartedServer(handler)
	srv.TLS = cfg
	srv.StartTLS()
	t.Cleanup(srv.Close)
	return srv
}
