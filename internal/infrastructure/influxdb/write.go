package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurements written by the video service.
const (
	MeasurementStream  = "video_stream"
	MeasurementSession = "video_session"
)

// WriteStreamSample records one periodic sample of a camera's stream.
// The write is non-blocking; points are batched.
//
// Example:
//
//	client.WriteStreamSample("porch", map[string]any{"frames": int64(900), "fps": 29.9})
func (c *Client) WriteStreamSample(cameraID string, fields map[string]any) {
	c.WritePoint(MeasurementStream, map[string]string{"camera_id": cameraID}, fields)
}

// WriteSessionEnd records a finished stream session, stamped at its end.
// outcome is a low-cardinality tag; the session id is a field.
func (c *Client) WriteSessionEnd(cameraID, outcome string, fields map[string]any, endedAt time.Time) {
	c.WritePointWithTime(
		MeasurementSession,
		map[string]string{
			"camera_id": cameraID,
			"outcome":   outcome,
		},
		fields,
		endedAt,
	)
}

// WritePoint writes a point stamped now.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime writes a point with an explicit timestamp. It is
// dropped silently when the client is not connected.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]any, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, timestamp))
}
