// Package tasks moves user data between storage backends with real-time progress reporting.
//
// # Core Operations
//
// [Engine] exposes three operations built on [Engine.Collect] and [Engine.Restore]:
//
//  1. [Engine.Migrate] : backend → backend copy
//     - Lists every account on the source
//     - Reads credentials, play records, favorites, skip configs, search history and settings per user
//     - Writes them to the destination, then copies the admin config
//
//  2. [Engine.Export] : backend → JSON [Snapshot]
//
//  3. [Engine.Import] : JSON [Snapshot] → backend
//
// # Progress Reporting
//
// All operations use non-blocking channels for progress updates.
//
// The [ProgressUpdate] struct contains phase, step counters, messages, and optional data for advanced UI rendering.
// Updates use select with default to prevent blocking.
//
// # Concurrency
//
// Users are processed by an errgroup bounded by [EngineOpts.Workers]; a rate limiter paces how fast new users
// are started so a hosted backend's request quota is not exhausted. The first error cancels the rest.
package tasks
