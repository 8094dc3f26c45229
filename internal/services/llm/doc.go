// Package llm provides an OpenAI-compatible chat client and the semantic
// tagger built on it.
//
// The tagger sends up to N evenly spaced frames (or the raw image) plus the
// transcript text and asks for {"description", "tags"}. Model output goes
// through ExtractJSON, which accepts strict JSON, a fenced ```json block, or
// the outermost brace-delimited substring, in that order.
//
// # Retry Behaviour
//
// The client retries HTTP 408/429/5xx replies, empty completions, and network
// timeouts with exponential backoff, honouring Retry-After. Failures surface
// with services error markers so the pipeline can decide whether the stage
// is worth another attempt.
package llm
