// Package serve builds the ordered request-handling pipeline from a
// canonical ServeConfig.
//
// The pipeline composes, in fixed precedence: tracing (outermost, so it
// measures true latency), custom header injection, user middleware, the
// reserved /_breeze/ endpoints, and finally the content cascade — static
// files, then the reverse proxy, then the SPA fallback. Each content
// handler stamps a source tag on the response writer; the tag is consumed
// by the trace and metrics subsystems and never reaches the client.
//
// A pipeline is built once per configuration snapshot and is never mutated;
// reconfiguration produces a new pipeline.
package serve
