// Package session keeps the history of camera stream sessions in SQLite.
//
// A session is one connect attempt of the video supervisor. Recorder
// observes the supervisor and writes a row when a stream starts and
// updates it when the stream ends. Attempts that fail before the first
// frame are stored as already finished rows.
//
// Frames are never stored; only counters and outcomes.
package session
