// Package gateway orchestrates the coven-chat server components.
//
// # Overview
//
// The gateway package wires the store, embedding provider, room router,
// conversation service and realtime hub into one HTTP server, and owns its
// lifecycle.
//
// # HTTP API
//
// All /api routes require a bearer JWT whose subject matches the acting user:
//
//	POST /api/messages          {senderId, receiverId, message} -> 201
//	GET  /api/messages          ?userId=&otherUserId=&limit=     -> 200
//	GET  /api/messages/search   ?userId=&q=&k=                    -> 200
//
// Responses use the envelope {"success": true, "data": ...}; failures use
// {"success": false, "error": "<short message>"}. Status codes:
//
//	400  missing or invalid field, empty body, self-messaging
//	401  missing or invalid bearer token
//	403  senderId or userId is not the caller
//	404  unknown sender, receiver or user
//	409  repeated Idempotency-Key from the same sender
//	503  embedding provider unavailable (search only)
//	500  persistence or unexpected failure
//
// Messages created over REST are published to the participants' room like
// messages sent over the websocket.
//
// # Realtime
//
// GET /ws upgrades to a websocket handled by the realtime package. Clients
// authenticate in-band with the authenticate event.
//
// # Health
//
//	GET /health        liveness, always 200
//	GET /health/ready  200 when the store answers a ping
//
// # Listeners
//
// The server listens on server.http_addr, or joins a tailnet through tsnet
// when tailscale.enabled is set (plain :80, HTTPS :443 with tailnet certs,
// or funnel).
//
// # Shutdown
//
// Run returns when its context is canceled. Shutdown stops the HTTP server,
// closes every realtime session, then closes the store.
package gateway
