// Package models defines domain entities and the storage contract for the katelyatv user-data service.
//
// The package contains two categories of types:
//
// 1. Per-user records, always reachable through their owning username:
//   - [PlayRecord] : Playback progress keyed by content key ("{source}+{id}")
//   - [Favorite] : Bookmarked titles keyed by content key
//   - [EpisodeSkipConfig] : Intro/outro skip points keyed by content key
//   - [UserSettings] : Preferences, always resolved through [MergeUserSettings]
//   - search history : a capped, de-duplicated, most-recent-first keyword list ([PushSearchHistory])
//
// 2. Global records:
//   - [AdminConfig] : Site, registration and source configuration
//   - [UserInfo] : Account listing entry with a role derived from the configured owner name
//
// The [Storage] interface is implemented once per backend in package storage.
// Handlers depend on [Storage] only and never see backend keys.
package models
