// Package observability provides context-aware structured logging for the
// SSO gateway.
//
// Every entry written through Logger carries the request id and remote
// address stored in the request context by the HTTP middleware, so a
// rejection logged deep in the pipeline can be matched to its access line.
package observability
