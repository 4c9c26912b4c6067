// Package server hosts the PressGate REST API behind a single HTTP server.
//
// The server builds a consistent middleware chain of request identifiers,
// logging, audit, metrics, security headers, and rate limiting so handlers
// all share common protections and instrumentation. Route registration stays
// in one place so the public login/profile/download surface and the admin
// API remain easy to audit.
package server
