// package models defines the data model for the katelyatv user-data service
package models

import (
	"context"
)

// Storage defines the per-user persistence contract shared by every backend.
//
// Absence is never an error: single-record getters return nil, enumerations return empty
// collections and predicates return false. A non-nil error always means the backend could
// not be reached or rejected the operation.
type Storage interface {
	GetPlayRecord(ctx context.Context, username, key string) (*PlayRecord, error)       // GetPlayRecord returns nil when nothing is stored
	SetPlayRecord(ctx context.Context, username, key string, record *PlayRecord) error  // SetPlayRecord creates or overwrites
	GetAllPlayRecords(ctx context.Context, username string) (map[string]*PlayRecord, error)
	DeletePlayRecord(ctx context.Context, username, key string) error

	GetFavorite(ctx context.Context, username, key string) (*Favorite, error)
	SetFavorite(ctx context.Context, username, key string, favorite *Favorite) error
	GetAllFavorites(ctx context.Context, username string) (map[string]*Favorite, error)
	DeleteFavorite(ctx context.Context, username, key string) error

	GetSearchHistory(ctx context.Context, username string) ([]string, error) // GetSearchHistory is ordered most-recent-first
	AddSearchHistory(ctx context.Context, username, keyword string) error
	DeleteSearchHistory(ctx context.Context, username, keyword string) error // DeleteSearchHistory clears everything when keyword is empty

	GetSkipConfig(ctx context.Context, username, key string) (*EpisodeSkipConfig, error)
	SetSkipConfig(ctx context.Context, username, key string, config *EpisodeSkipConfig) error
	GetAllSkipConfigs(ctx context.Context, username string) (map[string]*EpisodeSkipConfig, error)
	DeleteSkipConfig(ctx context.Context, username, key string) error

	RegisterUser(ctx context.Context, username, password string) error
	VerifyUser(ctx context.Context, username, password string) (bool, error)
	CheckUserExist(ctx context.Context, username string) (bool, error)
	ChangePassword(ctx context.Context, username, newPassword string) error
	DeleteUser(ctx context.Context, username string) error // DeleteUser removes every per-user record of every kind
	GetAllUsers(ctx context.Context) ([]UserInfo, error)

	GetAdminConfig(ctx context.Context) (*AdminConfig, error)
	SetAdminConfig(ctx context.Context, config *AdminConfig) error

	GetUserSettings(ctx context.Context, username string) (UserSettings, error) // GetUserSettings always returns a fully populated record
	SetUserSettings(ctx context.Context, username string, settings UserSettings) error
	UpdateUserSettings(ctx context.Context, username string, patch PartialSettings) error
}

// CredentialReader exposes stored account credentials.
//
// It is not part of [Storage] because request handlers never need it; data migration between
// backends does.
type CredentialReader interface {
	// GetCredentials returns the stored password and creation time (unix millis, 0 if unknown).
	// ok is false when the account does not exist.
	GetCredentials(ctx context.Context, username string) (password string, createdAt int64, ok bool, err error)
}
