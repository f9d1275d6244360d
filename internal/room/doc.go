// Package room routes realtime payloads between the live connections of two users.
//
// A room is not stored anywhere. Its id is derived from an unordered pair of
// user ids (CanonicalID), and the Router keeps it in memory only while at
// least one member is joined:
//
//	id := room.CanonicalID("u2", "u1") // "u1-u2"
//	room.CanonicalID("x", "y-z")        // "1:x-3:y-z", never equal to {"x-y", "z"}
//	router.Join(id, conn)
//	router.Broadcast(id, payload, "")    // every member
//	router.Broadcast(id, payload, connID) // every member except connID
//	router.Leave(id, connID)              // last leave discards the room
//
// Delivery is fire-and-forget: Member.Send must not block, and a member that
// cannot take the payload is skipped without affecting the others.
package room
