package models

// UserSettings is the fully resolved per-user preference record.
type UserSettings struct {
	FilterAdultContent bool   `json:"filter_adult_content"`
	Theme              string `json:"theme"`         // light, dark or auto
	Language           string `json:"language"`      // BCP 47 tag
	AutoPlay           bool   `json:"auto_play"`     // Continue with the next episode
	VideoQuality       string `json:"video_quality"` // auto, 1080p, 720p, ...
}

// PartialSettings carries an optional value per settings field; nil means "not provided".
//
// Stored settings are decoded into this type too, so records written by older versions with
// missing fields still resolve correctly.
type PartialSettings struct {
	FilterAdultContent *bool   `json:"filter_adult_content,omitempty"`
	Theme              *string `json:"theme,omitempty"`
	Language           *string `json:"language,omitempty"`
	AutoPlay           *bool   `json:"auto_play,omitempty"`
	VideoQuality       *string `json:"video_quality,omitempty"`
}

// DefaultUserSettings returns the settings used when nothing is stored.
func DefaultUserSettings() UserSettings {
	return UserSettings{
		FilterAdultContent: true,
		Theme:              "auto",
		Language:           "zh-CN",
		AutoPlay:           true,
		VideoQuality:       "auto",
	}
}

// MergeUserSettings resolves each field as patch, then current, then defaults.
func MergeUserSettings(defaults UserSettings, current *PartialSettings, patch PartialSettings) UserSettings {
	if current == nil {
		current = &PartialSettings{}
	}
	return UserSettings{
		FilterAdultContent: pick(patch.FilterAdultContent, current.FilterAdultContent, defaults.FilterAdultContent),
		Theme:              pick(patch.Theme, current.Theme, defaults.Theme),
		Language:           pick(patch.Language, current.Language, defaults.Language),
		AutoPlay:           pick(patch.AutoPlay, current.AutoPlay, defaults.AutoPlay),
		VideoQuality:       pick(patch.VideoQuality, current.VideoQuality, defaults.VideoQuality),
	}
}

func pick[T any](patch, current *T, fallback T) T {
	if patch != nil {
		return *patch
	}
	if current != nil {
		return *current
	}
	return fallback
}

// Partial converts a resolved record into a [PartialSettings] with every field set.
func (s UserSettings) Partial() PartialSettings {
	return PartialSettings{
		FilterAdultContent: &s.FilterAdultContent,
		Theme:              &s.Theme,
		Language:           &s.Language,
		AutoPlay:           &s.AutoPlay,
		VideoQuality:       &s.VideoQuality,
	}
}
