package models

import (
	"fmt"
	"strings"
)

// Role names reported by [Storage.GetAllUsers].
const (
	RoleOwner = "owner"
	RoleUser  = "user"
)

// PlayRecord is the playback progress of one title for one user.
type PlayRecord struct {
	Title         string `json:"title"`
	SourceName    string `json:"source_name"`
	Cover         string `json:"cover"`
	Year          string `json:"year"`
	Index         int    `json:"index"`          // Episode number, 1-based
	TotalEpisodes int    `json:"total_episodes"` // Episode count of the title
	PlayTime      int    `json:"play_time"`      // Seconds played
	TotalTime     int    `json:"total_time"`     // Episode length in seconds
	SaveTime      int64  `json:"save_time"`      // Unix millis of the last save
	SearchTitle   string `json:"search_title,omitempty"`
}

// Favorite is a bookmarked title.
type Favorite struct {
	SourceName    string `json:"source_name"`
	TotalEpisodes int    `json:"total_episodes"`
	Title         string `json:"title"`
	Year          string `json:"year"`
	Cover         string `json:"cover"`
	SaveTime      int64  `json:"save_time"`
	SearchTitle   string `json:"search_title,omitempty"`
}

// EpisodeSkipConfig holds the intro and outro skip points for a title, in seconds.
type EpisodeSkipConfig struct {
	Enable     bool    `json:"enable"`
	IntroEnd   float64 `json:"intro_end"`
	OutroStart float64 `json:"outro_start"`
	UpdatedAt  int64   `json:"updated_at,omitempty"`
	Extra      Extra   `json:"-"`
}

// UserInfo is one entry of the account listing.
type UserInfo struct {
	Username  string `json:"username" yaml:"username"`
	Role      string `json:"role" yaml:"role"`
	CreatedAt string `json:"created_at" yaml:"created_at"` // RFC3339, empty when unknown
}

// AdminConfig is the global site configuration. Backends store it as an opaque document;
// members not declared here are carried in Extra and written back unchanged.
type AdminConfig struct {
	SiteConfig   SiteConfig     `json:"site_config"`
	UserConfig   UserConfig     `json:"user_config"`
	SourceConfig []SourceConfig `json:"source_config"`
	Extra        Extra          `json:"-"` // Members this type does not declare, kept as-is
}

// SiteConfig contains site-wide presentation settings.
type SiteConfig struct {
	SiteName                string `json:"site_name"`
	Announcement            string `json:"announcement"`
	SearchDownstreamMaxPage int    `json:"search_downstream_max_page"`
	SiteInterfaceCacheTime  int    `json:"site_interface_cache_time"`
	Extra                   Extra  `json:"-"`
}

// UserConfig controls self-service registration and per-account flags.
type UserConfig struct {
	AllowRegister bool           `json:"allow_register"`
	Users         []AdminUserRef `json:"users"`
	Extra         Extra          `json:"-"`
}

// AdminUserRef is the admin panel's view of an account.
type AdminUserRef struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	Banned   bool   `json:"banned,omitempty"`
	Extra    Extra  `json:"-"`
}

// SourceConfig describes one upstream content source.
type SourceConfig struct {
	Key      string `json:"key"`
	Name     string `json:"name"`
	API      string `json:"api"`
	Detail   string `json:"detail,omitempty"`
	From     string `json:"from"` // "config" or "custom"
	Disabled bool   `json:"disabled,omitempty"`
	Extra    Extra  `json:"-"`
}

// AllowsRegistration reports whether self-service registration is enabled.
// A missing config allows it.
func (c *AdminConfig) AllowsRegistration() bool {
	return c == nil || c.UserConfig.AllowRegister
}

// ContentKey joins a source and a content ID into the storage sub-key.
func ContentKey(source, id string) string {
	return source + "+" + id
}

// SplitContentKey splits a sub-key built by [ContentKey].
func SplitContentKey(key string) (source, id string, err error) {
	source, id, ok := strings.Cut(key, "+")
	if !ok || source == "" || id == "" {
		return "", "", fmt.Errorf("malformed content key %q", key)
	}
	return source, id, nil
}
