// Package telemetry writes video stream metrics to the time-series store.
//
// Collector samples the output counters on a fixed interval and writes a
// video_stream point per sample. It also observes the supervisor and
// writes a video_session point for every session that ends.
package telemetry
