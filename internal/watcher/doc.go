// Package watcher refetches dashboard collections when the realtime stream
// reports a change.
package watcher
