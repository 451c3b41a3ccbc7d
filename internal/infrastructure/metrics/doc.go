// Package metrics exposes Prometheus metrics for Gray Logic Video.
//
// Registry owns a private prometheus.Registry with the Go runtime and
// process collectors. Video metrics are function-backed: they read the
// output counters at scrape time, so the capture loop does no metric work.
//
// Usage:
//
//	reg := metrics.NewRegistry()
//	if err := reg.RegisterVideo(cfg.Camera.ID, output); err != nil {
//	    return err
//	}
//	router.Handle("/metrics", reg.Handler())
package metrics
