// Package verify gates card wipes on pool coverage. A card may only be
// cleared once every file on it, matched by name and size, exists somewhere
// under the media pool; anything unmatched can first be rescued into the
// user's _orphan directory.
package verify
