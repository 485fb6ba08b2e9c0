// Package logging provides structured logging for ubiexport.
//
// It wraps log/slog with a JSON or text handler, level filtering and
// default service/version attributes. Logs go to stderr by default so
// that stdout stays free for command output.
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "text"     # json, text
//	  output: "stderr"   # stdout, stderr
//
// Never log the Ubidots token. Use Redact when a credential has to be
// identified in a log line.
package logging
