// Package ubidots is the HTTP client for the Ubidots industrial REST API.
//
// Every request is a GET carrying the account token in the X-Auth-Token
// header. Requests go through a bounded, fixed-delay retry loop (Get) that
// always hands back the last response it received; callers decide what a
// non-success response means through Response.Err. FetchAll walks the
// {results, next} pagination envelope used by the list endpoints.
//
// Endpoints used:
//
//	GET /api/v2.0/devices/                      device list (paginated)
//	GET /api/v2.0/devices/{id}/variables/       variables of one device (paginated)
//	GET /api/v1.6/variables/{id}/values/        last N readings of a variable
//	GET /api/v1.6/devices/{dev}/{var}/values/   last N readings, CSV format
//	GET /api/v1.6/datasources/{id}/tokens       per-device tokens
//
// The client is safe for concurrent use.
package ubidots
