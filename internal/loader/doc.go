// Package loader turns live Go values into override handles.
//
// Describe derives a shape descriptor from a type through reflection: its
// qualified name, embedded types, registered capabilities, fields and the
// method set of its pointer type. Wrap exposes a pointer to a struct as a
// handle whose exported fields are writable and whose methods are
// invocable, so strategies can be installed on them.
//
// Overrides take effect for callers that go through the handle. The
// decorators (RoundTripper, HTTPClient, FastDoer, WebsocketDialer,
// ProxyFunc, Upgrader) present a handle as the interface its component
// implements:
//
//	h, out, err := ld.Attach(eng, &http.Transport{})
//	if err != nil {
//	    return err
//	}
//	client := loader.HTTPClient(h)
package loader
