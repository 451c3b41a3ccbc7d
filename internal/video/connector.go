package video

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// Connection defaults.
const (
	defaultDialTimeout           = 10 * time.Second
	defaultResponseHeaderTimeout = 10 * time.Second
)

// Connector opens a byte stream to the camera's video endpoint.
// StreamConnector is the HTTP implementation.
type Connector interface {
	Connect(ctx context.Context, address string) (*StreamConn, error)
}

// StreamConn is an open video stream.
//
// Body reads are bound to the context passed to Connect: cancelling it
// unblocks a pending Read.
type StreamConn struct {
	URL         string
	ContentType string
	Body        io.ReadCloser
}

// Close releases the underlying connection.
func (c *StreamConn) Close() error {
	if c == nil || c.Body == nil {
		return nil
	}
	return c.Body.Close()
}

// StreamConnector opens the camera's continuous MJPEG endpoint over HTTP.
// It never retries; that is the supervisor's job.
type StreamConnector struct {
	client    *http.Client
	endpoints Endpoints
}

// NewStreamConnector creates a connector.
//
// When client is nil a dedicated client is built with the given connect
// timeout applied to dialing and to the response headers. The client has no
// overall timeout because the stream body is unbounded.
func NewStreamConnector(client *http.Client, endpoints Endpoints, connectTimeout time.Duration) *StreamConnector {
	if client == nil {
		client = newStreamClient(connectTimeout)
	}
	return &StreamConnector{
		client:    client,
		endpoints: endpoints.withDefaults(),
	}
}

func newStreamClient(connectTimeout time.Duration) *http.Client {
	dialTimeout := defaultDialTimeout
	headerTimeout := defaultResponseHeaderTimeout
	if connectTimeout > 0 {
		dialTimeout = connectTimeout
		headerTimeout = connectTimeout
	}

	dialer := &net.Dialer{
		Timeout:   dialTimeout,
		KeepAlive: 30 * time.Second,
	}
	return &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           dialer.DialContext,
			ResponseHeaderTimeout: headerTimeout,
			MaxIdleConnsPerHost:   1,
			IdleConnTimeout:       90 * time.Second,
		},
	}
}

// Connect issues the video request and returns the open stream.
// Every failure is a *ConnectionError.
func (c *StreamConnector) Connect(ctx context.Context, address string) (*StreamConn, error) {
	target, err := c.endpoints.resolve(address, c.endpoints.VideoPath)
	if err != nil {
		return nil, &ConnectionError{Address: address, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &ConnectionError{Address: address, Err: fmt.Errorf("building video request: %w", err)}
	}
	req.Header.Set("Accept", "multipart/x-mixed-replace, image/jpeg")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &ConnectionError{Address: address, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, &ConnectionError{
			Address: address,
			Err:     fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	return &StreamConn{
		URL:         target,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        resp.Body,
	}, nil
}
