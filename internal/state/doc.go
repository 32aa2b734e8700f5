// Package state persists one record per deployment unit: its lifecycle
// status, published outputs and the hashes used to detect changed inputs.
//
// Two backends exist: a local SQLite file (the default) and an S3 bucket
// for shared use.
package state
