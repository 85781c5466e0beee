package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/katelyatv/internal/formatter"
	"github.com/desertthunder/katelyatv/internal/models"
)

var (
	_ list.Item = userItem{}
	_ list.Item = recordItem{}
)

// userItem wraps [models.UserInfo] to implement [list.Item].
type userItem struct {
	user models.UserInfo
}

func (i userItem) FilterValue() string { return i.user.Username }
func (i userItem) Title() string       { return i.user.Username }
func (i userItem) Description() string {
	role := styles.role(i.user.Role)
	if i.user.CreatedAt == "" {
		return role
	}
	return fmt.Sprintf("%s • created %s", role, i.user.CreatedAt)
}

// recordItem wraps a [formatter.RecordRow] to implement [list.Item].
type recordItem struct {
	row formatter.RecordRow
}

func (i recordItem) FilterValue() string { return i.row.Title }
func (i recordItem) Title() string       { return i.row.Title }
func (i recordItem) Description() string {
	desc := fmt.Sprintf("%s • ep %s • %s", i.row.Source, i.row.Episode, i.row.Progress)
	if i.row.SavedAt != "" {
		desc = fmt.Sprintf("%s • %s", desc, i.row.SavedAt)
	}
	return desc
}
