// Package preflight provides readiness checks for the filesystem paths and
// external tools mediapool depends on.
//
// These checks run in two contexts:
//   - The CLI "mediapool doctor" command runs RunAll and renders a table so
//     an operator can see at a glance why a sync would fail.
//   - Individual checks (CheckVolume, CheckRsync) back the probes shown by
//     status-style output.
//
// Pool roots live on external drives, so a failed check usually means a cable,
// not a bug.
package preflight
