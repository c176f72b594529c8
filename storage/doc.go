// Package storage persists the authorization server's state: pending
// authorizations (issued codes), authorizations (one per successful code
// exchange, holding the refresh token) and access tokens.
//
// A Backend implements the typed Queries. The Gateway owns exactly one
// Backend and serializes every operation behind a single lock whose
// acquisition honors context cancellation. Gateway.Atomic holds that lock
// across a whole read-then-write sequence and runs it in a backend
// transaction, which is how the grant flows get single-use codes.
//
// Implementations are provided in subpackages:
//   - storage/sqlite: persistent storage on a SQLite file (modernc.org/sqlite)
//   - storage/memory: in-memory storage for tests and ephemeral deployments
package storage
