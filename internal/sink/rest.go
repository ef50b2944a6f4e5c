package sink

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"time"

	"coffeeshop/internal/sale"
)

// REST posts every record as a JSON document.
//
// Server certificates are NOT verified: the sink targets ad hoc endpoints
// (often self-signed). Do not point it at anything that needs a trusted
// channel.
type REST struct {
	url    string
	client *http.Client
}

// NewREST builds a sink posting to url with the given request timeout.
func NewREST(url string, timeout time.Duration) *REST {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	return &REST{
		url: url,
		client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}
}

func (s *REST) Name() string { return "rest" }

// Write posts the record. A network error or a non-2xx status wraps
// ErrTransport.
func (s *REST) Write(ctx context.Context, rec *sale.Record) error {
	body, err := rec.Marshal()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()
	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %s responded %s", ErrTransport, s.url, resp.Status)
	}
	return nil
}

func (s *REST) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
