package logging

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"
)

// HTTPSender posts each batch as a newline-delimited JSON body to a
// configured endpoint. It is the Sender an operator wires up when they
// want log lines shipped to a collector rather than kept to the local
// file/stdout sink.
type HTTPSender struct {
	endpoint string
	client   *http.Client
}

// NewHTTPSender builds an HTTPSender posting to endpoint with timeout
// applied per request.
func NewHTTPSender(endpoint string, timeout time.Duration) *HTTPSender {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPSender{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

// Send implements Sender by POSTing batch as newline-delimited bytes.
func (s *HTTPSender) Send(ctx context.Context, batch [][]byte) error {
	body := bytes.Join(batch, []byte("\n"))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("logging: failed to build external sink request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-ndjson")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("logging: failed to post to external sink: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("logging: external sink returned status %d", resp.StatusCode)
	}
	return nil
}

// ExternalSinkOptions configures an optional external log shipper
// layered on top of the primary zap core.
type ExternalSinkOptions struct {
	Enabled         bool
	Endpoint        string
	BufferSize      int
	BatchSize       int
	FlushInterval   time.Duration
	RequestTimeout  time.Duration
	RetryInterval   time.Duration
	MaxRetries      int
	FallbackToLocal bool
}

// NewExternalSink builds an ExternalLogger wired to an HTTPSender when
// opts.Enabled and opts.Endpoint are both set. localFallback is invoked
// with any batch the sink failed to deliver after exhausting retries,
// when FallbackToLocal is set; callers typically pass a function that
// re-emits the batch through the local file/stdout core.
func NewExternalSink(opts ExternalSinkOptions, localFallback func([][]byte)) *ExternalLogger {
	enabled := opts.Enabled && opts.Endpoint != ""
	var sender Sender
	if enabled {
		sender = NewHTTPSender(opts.Endpoint, opts.RequestTimeout)
	}
	return NewExternalLogger(
		enabled,
		opts.BufferSize,
		opts.BatchSize,
		opts.FlushInterval,
		opts.RetryInterval,
		opts.MaxRetries,
		opts.FallbackToLocal,
		sender,
		localFallback,
	)
}
