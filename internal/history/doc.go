// Package history persists participant state in SQLite: onboarding answers,
// treatment ranges, completed measurements, the weekly schedule, and whether
// each rendered timeline video has been exported.
//
// The schema is embedded and versioned. A database created by a different
// schema version is rejected with ErrSchemaMismatch instead of migrated.
package history
