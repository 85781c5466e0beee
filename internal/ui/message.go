package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/katelyatv/internal/models"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgUsersFetched MsgKind = iota
	MsgRecordsFetched
	MsgUserDeleted
)

type usersPayload struct {
	users []models.UserInfo
	err   error
}

type recordsPayload struct {
	records   map[string]*models.PlayRecord
	favorites int
	history   int
	err       error
}

type deletedPayload struct {
	username string
	err      error
}

// usersFetchedMsg is the constructor for [MsgUsersFetched]
func usersFetchedMsg(users []models.UserInfo, err error) Msg {
	return Msg{kind: MsgUsersFetched, data: usersPayload{users, err}}
}

// recordsFetchedMsg is the constructor for [MsgRecordsFetched]
func recordsFetchedMsg(records map[string]*models.PlayRecord, favorites, history int, err error) Msg {
	return Msg{kind: MsgRecordsFetched, data: recordsPayload{records, favorites, history, err}}
}

// userDeletedMsg is the constructor for [MsgUserDeleted]
func userDeletedMsg(username string, err error) Msg {
	return Msg{kind: MsgUserDeleted, data: deletedPayload{username, err}}
}
