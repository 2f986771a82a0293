// Package services defines shared error and context utilities used by the
// schedule engine, the timeline manager, and the CLI.
//
// Key responsibilities:
//   - Context helpers that stamp render task IDs, activity identifiers, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper so callers can classify
//     failures (invalid input vs missing tool vs transient) without string
//     matching.
package services
