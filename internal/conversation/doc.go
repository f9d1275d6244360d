// Package conversation implements the direct-message send path and the
// conversation queries built on top of the message log.
//
// # Sending
//
// SendMessage validates the request, resolves both participants, makes a
// best-effort attempt to embed the body, persists the message and only then
// hands the hydrated MessageView to the Publisher. A failed or slow embedding
// provider never fails a send; a failed write always does, and nothing is
// published for it.
//
// # Queries
//
//   - History returns a conversation ordered by (created_at, id) ascending.
//   - Search embeds the query (failure is reported, not degraded) and ranks
//     every message touching the user by cosine similarity. Messages stored
//     without a vector score 0 and rank below every embedded message.
//
// # Errors
//
// Callers map errors to transport responses with errors.As / errors.Is:
// *ValidationError (bad input), *NotFoundError (unknown user),
// embedding.ErrUnavailable (search only) and ErrPersistence.
package conversation
