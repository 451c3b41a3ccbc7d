// Package video implements the Axis camera video output for Gray Logic.
//
// It opens the camera's continuous MJPEG stream, splits it into discrete
// compressed frames, tags each frame with a timestamp and publishes it as a
// Record to subscribers. Loss of the stream is recovered automatically.
//
// # Architecture
//
//	┌───────────────┐   image size   ┌──────────────┐
//	│ SchemaBuilder │◄──────────────►│              │
//	└───────┬───────┘                │  Axis camera │
//	        │ schema + encoding      │   (HTTP)     │
//	┌───────▼────────────────┐  MJPEG│              │
//	│  ReconnectSupervisor   │◄──────┤              │
//	│  StreamConnector       │       └──────────────┘
//	│  FrameDecoder          │
//	└───────┬────────────────┘
//	        │ frames
//	┌───────▼────────┐
//	│ RecordPublisher├──► subscribers (relay, websocket hub, ...)
//	└────────────────┘
//
// Output ties the pieces together behind the Init/Start/Stop lifecycle used
// by the owning driver.
//
// # Records
//
// A Record is a (timestamp, frame) pair described by an OutputSchema and an
// EncodingDescriptor. The publisher owns a single Record buffer which it
// renews in place for every frame after the first. Subscribers receive a
// pointer to that buffer and must copy anything they keep past the
// callback. Latest returns a copy.
//
// # Errors
//
// ConfigurationError is fatal and is only returned by Init and Start.
// ConnectionError and StreamError are recoverable: the supervisor logs them,
// backs off and reconnects.
//
// # Thread Safety
//
// Subscribe, Unsubscribe, Latest, View, Stats and SetStreaming are safe for
// concurrent use. Subscriber callbacks run synchronously on the capture
// goroutine, in registration order. A slow subscriber delays the next frame.
package video
