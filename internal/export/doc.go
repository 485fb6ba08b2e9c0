// Package export writes the wide export table to a timestamped CSV file.
//
// Files are named <prefix>_<YYYYMMDD_HHMMSS>.csv using local time and are
// written through a temporary file in the same directory, then renamed, so
// a reader never observes a partial export.
package export
