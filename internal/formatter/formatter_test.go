package formatter

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/desertthunder/katelyatv/internal/models"
	"github.com/desertthunder/katelyatv/internal/shared"
	th "github.com/desertthunder/katelyatv/internal/testing"
	"gopkg.in/yaml.v3"
)

func testUsers() []models.UserInfo {
	return []models.UserInfo{
		{Username: "admin", Role: models.RoleOwner, CreatedAt: "2024-01-02T03:04:05Z"},
		{Username: "alice", Role: models.RoleUser},
	}
}

func testRecords() map[string]*models.PlayRecord {
	return map[string]*models.PlayRecord{
		"src+1": {Title: "Older", SourceName: "Source", Index: 1, TotalEpisodes: 10, PlayTime: 65, TotalTime: 1500, SaveTime: 1000},
		"src+2": {Title: "Newer | Pipes", SourceName: "Source", Index: 4, TotalEpisodes: 4, PlayTime: 3725, TotalTime: 4000, SaveTime: 2000},
	}
}

func TestWriteUsers(t *testing.T) {
	t.Run("table", func(t *testing.T) {
		var buf bytes.Buffer
		if err := WriteUsers(&buf, testUsers(), Table); err != nil {
			t.Fatalf("WriteUsers failed: %v", err)
		}
		output := buf.String()
		for _, want := range []string{"Username", "admin", "owner", "alice", "2024-01-02T03:04:05Z"} {
			if !strings.Contains(output, want) {
				t.Errorf("table missing %q, got:\n%s", want, output)
			}
		}
	})

	t.Run("csv", func(t *testing.T) {
		var buf bytes.Buffer
		if err := WriteUsers(&buf, testUsers(), CSV); err != nil {
			t.Fatalf("WriteUsers failed: %v", err)
		}
		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		if len(lines) != 3 {
			t.Fatalf("expected 3 CSV lines, got %d", len(lines))
		}
		if lines[0] != "Username,Role,Created" {
			t.Errorf("unexpected header: %s", lines[0])
		}
		if lines[2] != "alice,user,-" {
			t.Errorf("unknown creation time should render as -, got %s", lines[2])
		}
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		if err := WriteUsers(&buf, testUsers(), JSON); err != nil {
			t.Fatalf("WriteUsers failed: %v", err)
		}
		var got []models.UserInfo
		if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
			t.Fatalf("output is not JSON: %v", err)
		}
		if len(got) != 2 || got[0].Role != models.RoleOwner {
			t.Errorf("unexpected users: %+v", got)
		}
	})

	t.Run("json of nothing is an empty list", func(t *testing.T) {
		var buf bytes.Buffer
		if err := WriteUsers(&buf, nil, JSON); err != nil {
			t.Fatalf("WriteUsers failed: %v", err)
		}
		if strings.TrimSpace(buf.String()) != "[]" {
			t.Errorf("expected [], got %s", buf.String())
		}
	})

	t.Run("yaml", func(t *testing.T) {
		var buf bytes.Buffer
		if err := WriteUsers(&buf, testUsers(), YAML); err != nil {
			t.Fatalf("WriteUsers failed: %v", err)
		}
		var got []map[string]string
		if err := yaml.Unmarshal(buf.Bytes(), &got); err != nil {
			t.Fatalf("output is not YAML: %v", err)
		}
		if got[0]["username"] != "admin" || got[0]["created_at"] != "2024-01-02T03:04:05Z" {
			t.Errorf("unexpected YAML: %s", buf.String())
		}
	})

	t.Run("write error", func(t *testing.T) {
		if err := WriteUsers(&th.FWriter{}, testUsers(), CSV); err == nil {
			t.Error("expected write error")
		}
	})
}

func TestWriteRecords(t *testing.T) {
	t.Run("most recent first", func(t *testing.T) {
		rows := RecordRows(testRecords())
		if len(rows) != 2 {
			t.Fatalf("expected 2 rows, got %d", len(rows))
		}
		if rows[0].Key != "src+2" {
			t.Errorf("expected newest first, got %s", rows[0].Key)
		}
		if rows[0].Episode != "4/4" {
			t.Errorf("unexpected episode: %s", rows[0].Episode)
		}
		if rows[0].Progress != "1:02:05 / 1:06:40" {
			t.Errorf("unexpected progress: %s", rows[0].Progress)
		}
		if rows[1].Progress != "1:05 / 25:00" {
			t.Errorf("unexpected progress: %s", rows[1].Progress)
		}
	})

	t.Run("markdown escapes pipes", func(t *testing.T) {
		var buf bytes.Buffer
		if err := WriteRecords(&buf, testRecords(), Markdown); err != nil {
			t.Fatalf("WriteRecords failed: %v", err)
		}
		output := buf.String()
		if !strings.Contains(output, `Newer \| Pipes`) {
			t.Errorf("pipes should be escaped, got:\n%s", output)
		}
		if !strings.Contains(output, "| --- |") {
			t.Errorf("missing separator row, got:\n%s", output)
		}
		if !strings.Contains(output, "2 rows") {
			t.Errorf("missing row count, got:\n%s", output)
		}
	})

	t.Run("empty", func(t *testing.T) {
		var buf bytes.Buffer
		if err := WriteRecords(&buf, nil, JSON); err != nil {
			t.Fatalf("WriteRecords failed: %v", err)
		}
		if strings.TrimSpace(buf.String()) != "[]" {
			t.Errorf("expected [], got %s", buf.String())
		}
	})
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want Format
	}{
		{"", Table},
		{"TABLE", Table},
		{"csv", CSV},
		{"yml", YAML},
		{"md", Markdown},
		{"json", JSON},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if err != nil {
			t.Errorf("ParseFormat(%q) error = %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}

	if _, err := ParseFormat("xml"); !errors.Is(err, shared.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestFormatSeconds(t *testing.T) {
	for in, want := range map[int]string{0: "0:00", 59: "0:59", 61: "1:01", 3600: "1:00:00", -5: "0:00"} {
		if got := FormatSeconds(in); got != want {
			t.Errorf("FormatSeconds(%d) = %s, want %s", in, got, want)
		}
	}
}
