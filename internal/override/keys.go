package override

// Payload keys recognised by the configuration collaborator.
const (
	// KeyProxySelector resolves to the active proxy selector.
	KeyProxySelector = "activeProxySelector"
	// KeyTrustContext resolves to the trusting TLS context.
	KeyTrustContext = "trustingTlsContext"
)

// Keys returns every recognised payload key.
func Keys() []string {
	return []string{KeyProxySelector, KeyTrustContext}
}

// IsKnownKey reports whether key is a recognised payload key.
func IsKnownKey(key string) bool {
	return key == KeyProxySelector || key == KeyTrustContext
}
