// Package realtime implements the per-connection chat session over websockets.
//
// Every frame in either direction is a JSON envelope:
//
//	{"event": "send-message", "data": {"receiver_id": "u2", "message": "hi"}}
//
// A Session moves through Unauthenticated, Authenticated and InRoom and ends
// Closed. Frames from one connection are handled one at a time by that
// connection's read pump; different connections run concurrently.
//
// Inbound events: authenticate, join-room, leave-room, send-message, typing.
// Outbound events: authenticated, room-joined, room-left, receive-message,
// user-typing, unauthorized, error.
//
// Messages reach rooms through RoomPublisher, which the conversation service
// calls after the message is stored. Sessions never broadcast messages
// themselves, so an unstored message can never be delivered.
package realtime
