// Package dedupe tracks client-supplied message keys for a bounded window so
// a retried send is recognized instead of being stored twice.
//
// Keys are scoped by the sending user: two users may reuse the same key.
// A key is claimed before the write and released again when the write fails,
// so the client can retry with the same key.
package dedupe
