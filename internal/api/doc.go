// Package api provides the HTTP REST API and WebSocket server for Gray
// Logic Video.
//
// It exposes the video output to user interfaces and integrations:
//   - schema, encoding and status of the output
//   - the latest frame as JPEG or as an encoded record
//   - a live MJPEG re-stream for browsers and NVRs
//   - a WebSocket feed of encoded records
//   - stream session history and streaming control
//
// The server follows the same lifecycle pattern as other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api
