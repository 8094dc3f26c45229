// Package repo models a versioned media repository: a file tree of derived
// artifacts plus an append-only, most-recent-first commit log.
//
// Every visible tree mutation goes through the commit writer in commit.go so
// the tree and the history never drift apart; ReplayPaths and Verify check that
// property. Commit ids derive from the commit count, never from wall clock or
// randomness, so a replayed build yields identical ids.
//
// Locked folders hold pipeline output. The writer may add children to them,
// but user-facing callers must consult GuardUserEdit first.
package repo
