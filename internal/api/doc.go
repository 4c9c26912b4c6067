// Package api hosts the HTTP handlers that front the PressGate REST API.
//
// The handlers assembled by Handler coordinate request validation, session
// awareness, and response shaping while delegating persistence to
// storage.Repository implementations injected at construction time.
// Authentication and session lifecycle management are provided by
// auth.SessionManager instances passed into the handler; the package does not
// reach for globals or singletons and expects callers to supply fully
// configured dependencies.
//
// Premium downloads funnel through a gate.Releaser so the session, the
// entitlement, and the artifact transfer are authorized as one pipeline.
//
// Handler implementations assume upstream middleware from internal/server has
// already enforced rate limiting, metrics, request identifiers, and logging
// concerns. New routes should preserve that contract by avoiding duplicate
// validation and by leaning on the middleware guarantees established in the
// server stack.
package api
