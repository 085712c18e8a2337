// Package transport provides the net/http middleware chain shared by
// warden's HTTP surface.
//
// # Middleware
//
// Middleware wraps an http.Handler with cross-cutting concerns. Built-in
// middleware provides panic recovery, request ID assignment
// (X-Request-ID), and structured access logging via log/slog. Chain
// composes them so the first middleware is the outermost wrapper.
//
// # Errors
//
// Errors are written as JSON in a single envelope:
//
//	{"error": {"type": "unauthenticated", "message": "authentication required"}}
//
// WriteError is the one place that format is produced.
package transport
