// Package ingest offloads camera cards into dated media pool bins.
//
// A plan scans the card, indexes every user's pool for weak-identity
// duplicates, and suggests the next bin name for today. Execution copies the
// chosen file set into a brand-new bin with the card's layout and timestamps
// intact. Duplicate findings are written as CSV reports alongside the pool.
package ingest
