// Package influxdb provides InfluxDB connectivity for Gray Logic Video.
//
// It wraps the official influxdb-client-go v2 library for connection
// management, batched writes, and health monitoring.
//
// # Purpose
//
// Two measurements are written:
//   - video_stream: periodic frame rate, byte and failure counters per camera
//   - video_session: one point per finished stream session
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteStreamSample("porch", map[string]any{"fps": 29.97})
//
// # Thread Safety
//
// All methods are safe for concurrent use. Writes are non-blocking and
// their errors are delivered to the SetOnError callback.
package influxdb
