// package formatter renders accounts and play records as tables, CSV, JSON, YAML or Markdown
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/desertthunder/katelyatv/internal/models"
	"github.com/desertthunder/katelyatv/internal/shared"
	"gopkg.in/yaml.v3"
)

// Format is an output format name.
type Format string

const (
	Table    Format = "table"
	CSV      Format = "csv"
	JSON     Format = "json"
	YAML     Format = "yaml"
	Markdown Format = "markdown"
)

// Formats lists every supported format, for flag help text.
var Formats = []Format{Table, CSV, JSON, YAML, Markdown}

// ParseFormat validates a format name. Empty means [Table].
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case "":
		return Table, nil
	case Table, CSV, JSON, YAML, Markdown:
		return f, nil
	case "yml":
		return YAML, nil
	case "md":
		return Markdown, nil
	default:
		return "", fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, s)
	}
}

// RecordRow is the flattened, display-ready form of a [models.PlayRecord].
type RecordRow struct {
	Key      string `json:"key" yaml:"key"`
	Title    string `json:"title" yaml:"title"`
	Source   string `json:"source" yaml:"source"`
	Year     string `json:"year,omitempty" yaml:"year,omitempty"`
	Episode  string `json:"episode" yaml:"episode"`   // "3/12"
	Progress string `json:"progress" yaml:"progress"` // "12:34 / 45:00"
	SavedAt  string `json:"saved_at" yaml:"saved_at"` // RFC3339
}

// RecordRows flattens records, most recently saved first.
func RecordRows(records map[string]*models.PlayRecord) []RecordRow {
	rows := make([]RecordRow, 0, len(records))
	for key, rec := range records {
		if rec == nil {
			continue
		}
		rows = append(rows, RecordRow{
			Key:      key,
			Title:    rec.Title,
			Source:   rec.SourceName,
			Year:     rec.Year,
			Episode:  fmt.Sprintf("%d/%d", rec.Index, rec.TotalEpisodes),
			Progress: fmt.Sprintf("%s / %s", FormatSeconds(rec.PlayTime), FormatSeconds(rec.TotalTime)),
			SavedAt:  shared.FormatMillis(rec.SaveTime),
		})
	}

	sort.Slice(rows, func(i, j int) bool {
		ri, rj := records[rows[i].Key], records[rows[j].Key]
		if ri.SaveTime != rj.SaveTime {
			return ri.SaveTime > rj.SaveTime
		}
		return rows[i].Key < rows[j].Key
	})
	return rows
}

// FormatSeconds renders a duration in seconds as m:ss, or h:mm:ss from one hour up.
func FormatSeconds(total int) string {
	if total < 0 {
		total = 0
	}
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

var userHeaders = []string{"Username", "Role", "Created"}

func userRecord(u models.UserInfo) []string {
	created := u.CreatedAt
	if created == "" {
		created = "-"
	}
	return []string{u.Username, u.Role, created}
}

var recordHeaders = []string{"Key", "Title", "Source", "Episode", "Progress", "Saved"}

func recordRecord(r RecordRow) []string {
	return []string{r.Key, r.Title, r.Source, r.Episode, r.Progress, r.SavedAt}
}

// WriteUsers renders an account listing.
func WriteUsers(w io.Writer, users []models.UserInfo, format Format) error {
	if users == nil {
		users = []models.UserInfo{}
	}
	rows := make([][]string, len(users))
	for i, u := range users {
		rows[i] = userRecord(u)
	}
	return write(w, format, users, userHeaders, rows)
}

// WriteRecords renders a user's play records, most recent first.
func WriteRecords(w io.Writer, records map[string]*models.PlayRecord, format Format) error {
	flat := RecordRows(records)
	rows := make([][]string, len(flat))
	for i, r := range flat {
		rows[i] = recordRecord(r)
	}
	return write(w, format, flat, recordHeaders, rows)
}

func write(w io.Writer, format Format, v any, headers []string, rows [][]string) error {
	var (
		data []byte
		err  error
	)

	switch format {
	case Table, "":
		data = []byte(ToTable(headers, rows) + "\n")
	case CSV:
		data, err = ToCSV(headers, rows)
	case JSON:
		data, err = json.MarshalIndent(v, "", "  ")
		data = append(data, '\n')
	case YAML:
		data, err = yaml.Marshal(v)
	case Markdown:
		data = ToMarkdown(headers, rows)
	default:
		return fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, format)
	}
	if err != nil {
		return fmt.Errorf("failed to encode %s output: %w", format, err)
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

// ToTable renders rows as a bordered terminal table.
func ToTable(headers []string, rows [][]string) string {
	headerStyle := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle := lipgloss.NewStyle().Padding(0, 1)

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers(headers...).
		Rows(rows...)

	return t.String()
}

// ToCSV converts rows to CSV with a header line.
func ToCSV(headers []string, rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}
	for _, row := range rows {
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ToMarkdown converts rows to a GitHub-flavored Markdown table. Pipes in cells are escaped.
func ToMarkdown(headers []string, rows [][]string) []byte {
	var buf bytes.Buffer
	escape := strings.NewReplacer("|", `\|`, "\n", " ")

	line := func(cells []string) {
		buf.WriteString("|")
		for _, c := range cells {
			buf.WriteString(" " + escape.Replace(c) + " |")
		}
		buf.WriteString("\n")
	}

	line(headers)
	sep := make([]string, len(headers))
	for i := range sep {
		sep[i] = "---"
	}
	line(sep)
	for _, row := range rows {
		line(row)
	}

	buf.WriteString(fmt.Sprintf("\n%d rows\n", len(rows)))
	return buf.Bytes()
}
