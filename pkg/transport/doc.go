// Package transport defines the handler interface and middleware chain for
// the wingman HTTP transport layer.
//
// The transport layer bridges external clients and the reply pipeline. It
// deserializes incoming requests into the core types defined in pkg/api,
// dispatches them to the orchestrator, and serializes results or taxonomy
// errors back to the client as JSON.
//
// # Handler Interface
//
// ReplyCreator is the contract between the transport layer and the
// pipeline: one call in, one PipelineResult or error out. The HTTP adapter
// in the http subpackage owns routing, body limits, and status mapping;
// everything request-scoped and cross-cutting lives in middleware.
//
// # Middleware
//
// The middleware chain wraps ReplyCreator with cross-cutting concerns.
// Built-in middleware provides panic recovery, request ID assignment
// (X-Request-ID), and structured logging via log/slog. Custom middleware
// can be added for application-specific concerns.
package transport
