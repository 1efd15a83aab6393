// Package subscribers implements persistence for chat subscribers.
//
// The FileRepository keeps one decimal recipient id per line in an
// append-only text file and re-reads it before every membership check, so
// edits made by other processes are always observed.
package subscribers
