// Package pipeline drives a single asset through frame sampling, audio
// extraction, transcription, and semantic tagging.
//
// Each stage runs under a bounded exponential backoff and persists the asset
// through the caller's PersistFunc as soon as it finishes, so an interrupted
// run resumes from the first stage without a result. Stages whose result is
// already present are skipped. Optional stage failures are recorded in
// StageErrors and the asset continues; a failed required stage turns the
// asset into an error. Only persistence and cancellation errors are returned
// to the caller.
package pipeline
