// Package notifier turns collection mutations into change events.
//
// The Manager validates a notification, assigns it an ID and revision,
// records it in change storage, and publishes it on the event bus where
// every server instance's broadcaster picks it up.
package notifier
