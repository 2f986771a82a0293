// Package reminders pushes study reminders to an ntfy topic.
//
// The last-call reminder lists the activities still outstanding in the
// current study week and is skipped once they are all complete. Video-ready
// notifications follow timeline VideoCreated events. Without a configured
// topic every call is a no-op.
package reminders
