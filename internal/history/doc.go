// Package history records written exports in the export_runs and
// export_rows tables so partner deliveries can be listed and replayed.
package history
