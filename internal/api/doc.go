// Package api implements the HTTP session server for ubiexport.
//
// This package provides:
//   - Device listing for a device type with its export table, served from the memo cache
//   - CSV export of the export table, optionally restricted to selected devices
//   - Export history queries when a database is configured
//   - A WebSocket event stream announcing completed exports
//   - Middleware stack (request ID, logging, recovery, CORS)
//
// # Tokens
//
// Each request authenticates upstream with the X-Auth-Token header, the same
// header the Ubidots API uses. When the header is absent the server falls
// back to the token it was started with. Results are cached per device type
// and token, so two callers with different tokens never share data.
//
// # Graceful Degradation
//
// The server operates without a database: history endpoints answer 503 and
// exports are served but not recorded.
package api
