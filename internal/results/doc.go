// Package results turns the async request API's per-row validation output
// into the views the check pages render: field-indexed rows, an error
// aggregation keyed by entry number, geometries for the map, and
// ellipsis-truncated pagination.
//
// Everything here is request scoped and pure. Missing input degrades to
// empty output with a logged warning; nothing in this package returns an
// error to the page.
package results
