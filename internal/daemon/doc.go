// Package daemon runs the background timeline service.
//
// The daemon holds a flock so only one instance runs per data directory,
// watches the frame cache with fsnotify, and rebuilds the current treatment
// video for every activity whose frames changed once the debounce window
// goes quiet. Completed videos are forwarded to the reminder service.
package daemon
