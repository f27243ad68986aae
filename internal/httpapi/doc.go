// Package httpapi exposes the broadcast engine over a small JSON REST
// surface. It is a thin adapter: request decoding, dispatch service calls,
// and error-to-status mapping live here; all task semantics live in
// internal/services/dispatch.
package httpapi
