// Package server exposes the live client state over HTTP for operators:
// health, Prometheus metrics, and JSON views of the dashboard,
// notifications and activity list.
package server
