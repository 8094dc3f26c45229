// Package services defines shared utilities consumed by the pipeline stages
// and the external analysis clients.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, asset IDs, stage names, and
//     correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper so stage failures carry a
//     classification (retry, degrade, or fail the asset).
//   - Details, which reduces a wrapped error to the short message stored on an
//     asset record.
//
// Use these helpers when wiring new stage logic so retries and asset error
// messages stay uniform across the pipeline.
package services
