// Package services defines shared utilities consumed by the sync, ingest, and
// packaging flows plus the external tool integrations.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, task labels, and pool user names for
//     logging and tracing.
//   - Structured error markers plus the Wrap helper that classify failures into
//     fatal structural problems versus recoverable external tool exits.
//   - Thin abstractions that make command execution and output streaming from
//     external tools testable.
//
// Use these helpers when wiring new flows so operational behaviour (error
// handling, observability) stays uniform across the pipeline.
package services
