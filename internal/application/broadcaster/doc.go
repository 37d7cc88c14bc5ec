// Package broadcaster fans change events out to connected stream clients.
//
// A Hub subscribes to the change topic on the event bus and copies every
// event into each registered client's buffered channel. A client whose
// buffer is full misses that event rather than stalling the others; the
// next change for the same kind brings it back in sync because frames only
// say "refetch this collection".
package broadcaster
