// Package ingest defines the ingestion domain: jobs, assets, their status
// machines, and the per-stage results the pipeline attaches to each asset.
//
// Types here are plain data. Persistence lives in the store package and state
// transitions are driven by the workflow manager; helpers in this package only
// answer questions about a value (is it terminal, which stages apply) or make
// local, validated transitions such as a manual error→pending retry.
package ingest
