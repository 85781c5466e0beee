package models

import (
	"encoding/json"
	"testing"
)

// members decodes a JSON object into raw members for order-independent comparison.
func members(t *testing.T, data []byte) map[string]json.RawMessage {
	t.Helper()
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("invalid JSON %s: %v", data, err)
	}
	return m
}

func TestAdminConfigKeepsUnknownMembers(t *testing.T) {
	in := `{
		"site_config": {"site_name": "x", "DoubanProxy": "https://proxy"},
		"user_config": {"allow_register": true, "users": [{"username": "bob", "role": "user", "group": "vip"}]},
		"source_config": [{"key": "a", "name": "A", "api": "https://a", "from": "config", "weight": 3}],
		"ConfigFile": "{\"cache_time\":7200}",
		"live_config": [1]
	}`

	var cfg AdminConfig
	if err := json.Unmarshal([]byte(in), &cfg); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if cfg.SiteConfig.SiteName != "x" || !cfg.UserConfig.AllowRegister || cfg.UserConfig.Users[0].Username != "bob" {
		t.Errorf("typed fields not decoded: %+v", cfg)
	}
	if len(cfg.Extra) != 2 {
		t.Errorf("expected 2 top-level extra members, got %v", cfg.Extra)
	}

	out, err := json.Marshal(&cfg)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	top := members(t, out)
	if string(top["ConfigFile"]) != `"{\"cache_time\":7200}"` {
		t.Errorf("ConfigFile lost or changed: %s", top["ConfigFile"])
	}
	if string(top["live_config"]) != `[1]` {
		t.Errorf("live_config lost or changed: %s", top["live_config"])
	}
	if site := members(t, top["site_config"]); string(site["DoubanProxy"]) != `"https://proxy"` {
		t.Errorf("nested site_config member lost: %s", top["site_config"])
	}

	var again AdminConfig
	if err := json.Unmarshal(out, &again); err != nil {
		t.Fatalf("second Unmarshal failed: %v", err)
	}
	if string(again.UserConfig.Users[0].Extra["group"]) != `"vip"` {
		t.Errorf("user member lost: %v", again.UserConfig.Users[0].Extra)
	}
	if string(again.SourceConfig[0].Extra["weight"]) != `3` {
		t.Errorf("source member lost: %v", again.SourceConfig[0].Extra)
	}
}

func TestDocumentMembers(t *testing.T) {
	t.Run("declared fields match case-insensitively", func(t *testing.T) {
		var cfg EpisodeSkipConfig
		if err := json.Unmarshal([]byte(`{"Intro_End": 90, "outro_start": 1300}`), &cfg); err != nil {
			t.Fatalf("Unmarshal failed: %v", err)
		}
		if cfg.IntroEnd != 90 || cfg.Extra != nil {
			t.Errorf("expected IntroEnd 90 and no extras, got %+v", cfg)
		}
	})

	t.Run("typed fields win over extras", func(t *testing.T) {
		cfg := EpisodeSkipConfig{IntroEnd: 90, Extra: Extra{"intro_end": json.RawMessage(`1`), "note": json.RawMessage(`"op"`)}}
		out, err := json.Marshal(cfg)
		if err != nil {
			t.Fatalf("Marshal failed: %v", err)
		}
		m := members(t, out)
		if string(m["intro_end"]) != "90" || string(m["note"]) != `"op"` {
			t.Errorf("unexpected encoding %s", out)
		}
	})

	t.Run("no extras encodes like the plain struct", func(t *testing.T) {
		out, err := json.Marshal(EpisodeSkipConfig{Enable: true})
		if err != nil {
			t.Fatalf("Marshal failed: %v", err)
		}
		if want := `{"enable":true,"intro_end":0,"outro_start":0}`; string(out) != want {
			t.Errorf("expected %s, got %s", want, out)
		}
	})

	t.Run("non-object input fails", func(t *testing.T) {
		var cfg AdminConfig
		if err := json.Unmarshal([]byte(`[1, 2]`), &cfg); err == nil {
			t.Error("expected an error for an array")
		}
	})
}
