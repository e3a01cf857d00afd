// Package server is the relay's stateless HTTP backend.
//
// It exposes three JSON endpoints:
//
//   - /api/auth/generate-url builds Google's consent URL
//   - /api/auth/oauth-callback exchanges an authorization code for tokens
//   - /api/send-email sends one HTML email as the authorized user
//
// Every request carries all the inputs it needs; the server keeps no
// sessions and stores no credentials. Responses allow any origin so a
// browser client on another host can call them.
//
// Alongside the API the server renders the /callback page Google redirects
// to, serves liveness and readiness probes, and optionally runs a separate
// Prometheus listener (see MetricsServer).
package server
