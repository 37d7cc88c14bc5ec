// Package domain holds the change-notification types shared by the
// event server and the realtime watcher.
package domain
