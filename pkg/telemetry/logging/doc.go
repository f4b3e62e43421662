// Package logging builds the process logger on top of log/slog.
//
// New assembles a handler chain from LoggingConfig: a JSON or text output
// handler, wrapped by RedactHandler so credential material never reaches
// the output, wrapped by ContextHandler so request-scoped identifiers
// (request ID, job ID, credential ID) attach automatically to records
// logged through the slog *Context methods.
//
// The assembled logger is installed as the slog default at startup;
// packages log through slog directly and inherit redaction and context
// extraction without importing this package.
package logging
