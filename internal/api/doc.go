// Package api provides the HTTP control surface and WebSocket
// presentation channel for Catspaw.
//
// Every receiver operation is exposed under /api/v1/avr. Responses carry
// a human-readable message plus the controller state snapshot. A receiver
// fault is a normal 200 response with "ok": false; only malformed
// requests and server faults use 4xx and 5xx.
//
// The server follows the same lifecycle pattern as other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// When security.jwt.secret is set, every route except /health and
// /version requires an "Authorization: Bearer" token minted by
// IssueToken, and WebSocket clients authenticate with a single-use
// ticket from POST /auth/ws-ticket.
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api
