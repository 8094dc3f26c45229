// Package daemon coordinates the long-running mediarepo process.
//
// It wires configuration, the store, blob storage, the event bus, and the
// workflow manager into a single lifecycle with flock-based locking to prevent
// multiple instances. The daemon serves the HTTP API (jobs, repositories, live
// events over websocket, log tail), runs preflight checks at startup, and
// attaches push notifications to the event bus.
//
// Keep orchestration logic here: ingestion steps live in pipeline and
// workflow while the daemon focuses on startup, shutdown, and transport.
package daemon
