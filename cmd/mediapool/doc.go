// Package main hosts the mediapool CLI entrypoint and command graph.
//
// The Cobra-based command tree translates terminal invocations into pool
// synchronization runs, card offloads, wipe verification, proxy packaging,
// journal queries, and configuration scaffolding. It centralizes configuration
// resolution, logger setup, and prompt handling so subcommands can focus on
// user experience instead of wiring.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
