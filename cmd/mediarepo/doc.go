// Package main hosts the mediarepo CLI.
//
// The Cobra command tree talks to the daemon over its HTTP API. Read-only
// commands (jobs, repos) fall back to opening the store directly when the
// daemon is not running. `mediarepo serve` runs the daemon in the foreground.
package main
