// Package packager stages finished proxy folders for hand-off. Each run
// gathers the user's unsent top-level proxy directories into a fresh dated
// bucket under _sent, so the bucket's contents map one-to-one onto a single
// upload. Folders already present in any earlier bucket are never re-sent.
package packager
