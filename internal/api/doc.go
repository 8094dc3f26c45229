// Package api defines the wire-format types for the daemon's HTTP API and a
// small client the CLI uses to call it.
//
// # Key Types
//
// Job / Asset: transport views of pending ingestion jobs with per-stage
// completion derived from the stored stage results.
//
// DaemonStatus: daemon running state, workflow summary, and preflight results.
//
// LogStreamResponse: structured log payloads for live tailing.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Repositories are served as-is from the repo
// package because their JSON shape is already the persisted document.
// Timestamps use RFC3339 with milliseconds.
package api
