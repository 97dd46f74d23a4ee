// Package transport issues signed requests to the fitbod API over a fresh
// TCP connection per call.
//
// The client deliberately has no timeouts and no connection reuse: the
// harness exists to expose server defects, so a stalled peer hangs the
// issuing job rather than being papered over by a client-side deadline. Any
// transport error, and any response status outside the accepted set for the
// endpoint, is fatal to the job. Swapping in a deadline-based model later
// only requires touching this package.
package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/fitbod/fitstress/internal/auth"
	"github.com/fitbod/fitstress/internal/metrics"
	"github.com/fitbod/fitstress/internal/workout"
)

// acceptedStatus is the only success status per endpoint.
var acceptedStatus = map[string]int{
	workout.NewPath:  204,
	workout.ListPath: 200,
}

// Client sends signed POST requests to one server.
type Client struct {
	addr   string
	logger *zap.Logger
	sink   metrics.Sink

	// now is swappable for signature tests.
	now func() time.Time
}

// NewClient creates a client for the server at addr (host:port).
func NewClient(addr string, logger *zap.Logger, sink metrics.Sink) *Client {
	return &Client{addr: addr, logger: logger, sink: sink, now: time.Now}
}

// Send signs body with key, posts it to path, and returns the response body.
// A non-accepted status or any connect/write/read error is returned as an
// error; the caller treats every error from Send as fatal to the run.
func (c *Client) Send(ctx context.Context, path string, key auth.PrivateKey, body []byte) ([]byte, error) {
	timestamp := c.now().Unix()
	sig := auth.Sign(timestamp, body, key)
	request := buildRequest(c.addr, path, timestamp, sig, body)

	start := time.Now()
	resp, err := c.roundTrip(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("send %s: %w", path, err)
	}
	latency := time.Since(start)

	c.sink.ObserveRequest(path, resp.Status, latency, start)

	if want := acceptedStatus[path]; resp.Status != want {
		c.logger.Error("unexpected response status",
			zap.String("endpoint", path),
			zap.Int("status", resp.Status),
			zap.Int("want", want),
			zap.ByteString("request", request),
			zap.ByteString("response", resp.raw),
		)
		return nil, fmt.Errorf("send %s: status %d, want %d", path, resp.Status, want)
	}
	return resp.Body, nil
}

// buildRequest serializes the full signed HTTP/1.1 request.
func buildRequest(host, path string, timestamp int64, sig, body []byte) []byte {
	head := fmt.Sprintf("POST %s HTTP/1.1\r\n"+
		"Host: %s\r\n"+
		"Content-Type: application/json\r\n"+
		"%s: %d\r\n"+
		"%s: %s\r\n"+
		"Content-Length: %d\r\n"+
		"Connection: close\r\n"+
		"\r\n",
		path, host,
		auth.TimestampHeader, timestamp,
		auth.SignatureHeader, auth.EncodeKey(sig),
		len(body))
	return append([]byte(head), body...)
}

// roundTrip opens a connection, writes the request, and reads until the
// response is structurally complete. The connection carries no deadlines;
// the Go runtime parks the goroutine on would-block instead of surfacing it,
// which preserves the retry-on-would-block contract. Every other error is
// returned as-is.
func (c *Client) roundTrip(ctx context.Context, request []byte) (*response, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", c.addr, err)
	}
	defer func() { _ = conn.Close() }()

	for wrote := 0; wrote < len(request); {
		n, err := conn.Write(request[wrote:])
		if err != nil {
			return nil, fmt.Errorf("write request: %w", err)
		}
		wrote += n
	}

	buf := make([]byte, 0, 4096)
	chunk := make([]byte, 4096)
	for {
		n, err := conn.Read(chunk)
		buf = append(buf, chunk[:n]...)

		if resp, perr := parseResponse(buf); perr != nil {
			return nil, perr
		} else if resp != nil {
			return resp, nil
		}

		if err == io.EOF {
			return parseAtEOF(buf)
		}
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}
	}
}
