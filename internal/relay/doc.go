// Package relay bridges a video output onto the Gray Logic MQTT bus.
//
// For camera "porch" the relay uses:
//
//	graylogic/video/porch/frame    encoded records, QoS 0, every Nth frame
//	graylogic/video/porch/schema   retained JSON schema and encoding
//	graylogic/video/porch/status   retained JSON health, published periodically
//	graylogic/video/porch/control  subscribed, {"streaming": true|false}
//
// Frames are handed from the capture goroutine to the relay goroutine
// through a one-slot mailbox. When the broker is slower than the camera
// the older pending frame is replaced and counted as dropped; capture
// never waits on MQTT.
package relay
