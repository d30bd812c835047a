// Package mediaindex builds weak-identity indexes over media pool trees.
//
// Identity is the (base name, byte size) pair. Camera cards are diffed against
// a pool index to decide which files are new; hashing terabytes of footage on
// every ingest is not practical, and recording filenames are unique enough in
// practice that name plus exact size catches re-offloads reliably.
package mediaindex
