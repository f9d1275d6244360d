// Package store provides persistent storage for coven-chat using SQLite.
//
// # Data Models
//
//   - User: display identity (id, name) referenced by messages
//   - Message: immutable direct message between two distinct users, with an
//     optional embedding vector for semantic search
//
// # Message Log
//
// The message log is append-only. There is no update or delete path. Every
// message gets a UUIDv7 id and a created_at timestamp that is strictly
// increasing within a process; reads order by (created_at, id) so the order
// is total even when timestamps collide across processes.
//
// # Embeddings
//
// Vectors are stored in message_embeddings as little-endian float32 blobs.
// The body and vector are written in one transaction; when the vector part
// fails (ErrVectorRejected) the message is written again without it.
//
// # SQLite Configuration
//
// Each pooled connection enables WAL, foreign keys and a busy timeout through
// the DSN. Two drivers are supported:
//
//   - "sqlite": modernc.org/sqlite (pure Go, default)
//   - "sqlite3": github.com/mattn/go-sqlite3 (cgo)
//
// # Testing
//
// Use NewMockStore() for unit tests; it can inject CreateMessage failures
// and vector rejections. Use NewSQLiteStore on a t.TempDir() path for
// integration tests with real SQLite.
package store
