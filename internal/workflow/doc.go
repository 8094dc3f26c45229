// Package workflow is the job queue and background worker.
//
// Submit persists a job and returns immediately; Process claims the job's
// lease, runs every non-terminal asset through the pipeline with a bounded
// pool, and, once every asset is ready or errored, builds the repository and
// promotes it in one store transaction. Duplicate triggers are ignored: a job
// already in this process's active set, or leased by another live process,
// is left alone.
//
// Lifecycle events (JOB_STARTED, ASSET_UPDATE, JOB_COMPLETED, JOB_FAILED) go
// to the events bus. Each job also gets a dedicated log file under
// <log_dir>/jobs.
package workflow
