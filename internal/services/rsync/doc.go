// Package rsync mediates access to the rsync binary used for pool transfers.
//
// It probes the binary generation to choose a flag set, normalizes command
// invocation for forward mirrors, glob-filtered dry runs and back-fills, and
// parses itemized-changes output into typed entries.
//
// Prefer this package over ad-hoc exec.Command usage when moving pool data so
// exclude handling and exit-code classification remain consistent.
package rsync
