package main

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/vyrodovalexey/avaegress/internal/engine"
	"github.com/vyrodovalexey/avaegress/internal/loader"
	"github.com/vyrodovalexey/avaegress/internal/observability"
)

// runCheck attaches a fresh HTTP transport and fetches rawURL through it,
// so the operator proxy and trust anchors are exercised end to end.
func runCheck(ctx context.Context, w io.Writer, app *application, rawURL string) error {
	ctx, span := app.tracer.StartSpan(ctx, "avaegress.check")
	defer span.End()

	transport := http.DefaultTransport.(*http.Transport).Clone()
	defer transport.CloseIdleConnections()

	h, out, err := app.loader.AttachContext(ctx, app.engine, transport)
	if err != nil {
		return err
	}
	if out.Kind != engine.Transformed {
		if err := out.Err(); err != nil {
			return fmt.Errorf("transport was not transformed: %s: %w", out.Kind, err)
		}
		return fmt.Errorf("transport was not transformed: %s", out.Kind)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return err
	}
	client := &http.Client{Transport: loader.RoundTripper(h)}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	n, _ := io.Copy(io.Discard, resp.Body)

	app.logger.WithContext(ctx).Info("check completed",
		observability.String("url", rawURL),
		observability.Int("status", resp.StatusCode),
	)
	fmt.Fprintf(w, "%s %s (%d bytes) via %v\n", rawURL, resp.Status, n, out.Strategies)
	return nil
}
