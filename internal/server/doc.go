// Package server implements the HTTP API that drives the recording pipeline.
// Control endpoints start, stop, resubmit and cancel a capture; monitoring
// endpoints expose health, status, statistics, configuration and Prometheus
// metrics.
package server
