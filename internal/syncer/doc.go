// Package syncer orchestrates pool mirroring runs.
//
// A run expands a user and mode selection into source/destination pool pairs,
// guards them with a host flock plus per-pool sentinel locks, and drives
// rsync through three phases per pair: an additive forward mirror, a filtered
// dry run that lists destination-only files, and an optional back-sync of
// those files governed by the configured policy. Every rsync invocation is
// teed into a transcript under the destination pool's report directory.
//
// rsync failures are warnings: a partial mirror is rerun, never rolled back.
// Lock contention, unmounted volumes and configuration gaps abort the run.
package syncer
