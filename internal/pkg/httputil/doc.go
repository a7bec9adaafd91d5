// Package httputil provides shared HTTP response helpers for the web
// handlers: JSON for the health probes, HTML for rendered pages, and
// consistent logging of internal errors.
package httputil
