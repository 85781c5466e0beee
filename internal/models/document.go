package models

import (
	"encoding/json"
	"reflect"
	"strings"
)

// Extra holds JSON members a document type does not declare. They survive a decode/encode
// round trip untouched, so clients can store fields this service knows nothing about.
type Extra map[string]json.RawMessage

// decodeKeeping decodes data into v (a pointer to a struct) and returns the members that
// matched none of v's fields. Field matching is case-insensitive, as in encoding/json.
func decodeKeeping(data []byte, v any) (Extra, error) {
	if err := json.Unmarshal(data, v); err != nil {
		return nil, err
	}

	var members map[string]json.RawMessage
	if err := json.Unmarshal(data, &members); err != nil {
		return nil, err
	}

	known := jsonFieldNames(reflect.TypeOf(v).Elem())
	var extra Extra
	for name, raw := range members {
		if known[strings.ToLower(name)] {
			continue
		}
		if extra == nil {
			extra = Extra{}
		}
		extra[name] = raw
	}
	return extra, nil
}

// encodeKeeping encodes v and adds the members of extra that v does not already set.
func encodeKeeping(v any, extra Extra) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil || len(extra) == 0 {
		return data, err
	}

	var members map[string]json.RawMessage
	if err := json.Unmarshal(data, &members); err != nil {
		return nil, err
	}
	for name, raw := range extra {
		if _, ok := members[name]; !ok {
			members[name] = raw
		}
	}
	return json.Marshal(members)
}

// jsonFieldNames returns the lowercased JSON member names of a struct type.
func jsonFieldNames(t reflect.Type) map[string]bool {
	names := make(map[string]bool, t.NumField())
	for i := range t.NumField() {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			continue
		}
		if name == "" {
			name = f.Name
		}
		names[strings.ToLower(name)] = true
	}
	return names
}

func (c *AdminConfig) UnmarshalJSON(data []byte) error {
	type plain AdminConfig
	extra, err := decodeKeeping(data, (*plain)(c))
	c.Extra = extra
	return err
}

func (c AdminConfig) MarshalJSON() ([]byte, error) {
	type plain AdminConfig
	return encodeKeeping(plain(c), c.Extra)
}

func (c *SiteConfig) UnmarshalJSON(data []byte) error {
	type plain SiteConfig
	extra, err := decodeKeeping(data, (*plain)(c))
	c.Extra = extra
	return err
}

func (c SiteConfig) MarshalJSON() ([]byte, error) {
	type plain SiteConfig
	return encodeKeeping(plain(c), c.Extra)
}

func (c *UserConfig) UnmarshalJSON(data []byte) error {
	type plain UserConfig
	extra, err := decodeKeeping(data, (*plain)(c))
	c.Extra = extra
	return err
}

func (c UserConfig) MarshalJSON() ([]byte, error) {
	type plain UserConfig
	return encodeKeeping(plain(c), c.Extra)
}

func (u *AdminUserRef) UnmarshalJSON(data []byte) error {
	type plain AdminUserRef
	extra, err := decodeKeeping(data, (*plain)(u))
	u.Extra = extra
	return err
}

func (u AdminUserRef) MarshalJSON() ([]byte, error) {
	type plain AdminUserRef
	return encodeKeeping(plain(u), u.Extra)
}

func (c *SourceConfig) UnmarshalJSON(data []byte) error {
	type plain SourceConfig
	extra, err := decodeKeeping(data, (*plain)(c))
	c.Extra = extra
	return err
}

func (c SourceConfig) MarshalJSON() ([]byte, error) {
	type plain SourceConfig
	return encodeKeeping(plain(c), c.Extra)
}

func (c *EpisodeSkipConfig) UnmarshalJSON(data []byte) error {
	type plain EpisodeSkipConfig
	extra, err := decodeKeeping(data, (*plain)(c))
	c.Extra = extra
	return err
}

func (c EpisodeSkipConfig) MarshalJSON() ([]byte, error) {
	type plain EpisodeSkipConfig
	return encodeKeeping(plain(c), c.Extra)
}
