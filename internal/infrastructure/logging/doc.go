// Package logging provides structured logging for Catspaw.
//
// It wraps log/slog so every component logs with the same handler,
// the same default fields (service, version) and the same level filter.
//
// Configuration:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "file"     # stdout, stderr, file
//	  file: "/var/log/catspaw.log"
//
// Components never import this package directly; they declare a small
// Logger interface that *Logger satisfies.
package logging
