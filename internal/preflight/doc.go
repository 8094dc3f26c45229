// Package preflight provides readiness checks for the directories, store,
// and external services mediarepo depends on.
//
// The daemon runs RunAll at startup and logs every failure without refusing
// to start; a missing analysis service only degrades the stages that need it.
// The CLI "mediarepo status" command renders the same results as a table.
package preflight
