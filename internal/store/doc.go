// Package store persists pending ingestion jobs, finalized repositories, and
// asset blobs in SQLite.
//
// The Store is the only writer of durable state. Three collections back the
// system: pending_jobs (in-flight work, deleted on promotion), repos (one JSON
// document per repository, rewritten whole on every commit), and assets (blob
// bytes or external object keys). Schema bootstrap runs at Open: missing
// required tables are rebuilt and additive migrations applied. Writes for one
// job id are serialized with a per-job mutex around a read-modify-write
// transaction.
//
// Non-busy write failures trigger one schema rebuild and a single retry before
// the error is surfaced.
package store
