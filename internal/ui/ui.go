package ui

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/katelyatv/internal/formatter"
	"github.com/desertthunder/katelyatv/internal/models"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	UserListView ViewState = iota
	RecordListView
	ConfirmView
	DeletingView
	ResultView
)

// Model represents the TUI application state.
type Model struct {
	ctx        context.Context
	view       ViewState
	store      models.Storage
	width      int
	height     int
	userList   list.Model
	users      []models.UserInfo
	recordList list.Model
	selected   *models.UserInfo
	favorites  int
	history    int
	deleted    string
	notice     string
	err        error
	help       help.Model
	keys       keyMap
}

// NewModel creates a new TUI model browsing store.
func NewModel(ctx context.Context, store models.Storage) *Model {
	return &Model{
		ctx:        ctx,
		view:       UserListView,
		store:      store,
		userList:   newList(nil, "Users"),
		recordList: newList(nil, "Play records"),
		help:       help.New(),
		keys:       newKeyMap(),
	}
}

func newList(items []list.Item, title string) list.Model {
	l := list.New(items, list.NewDefaultDelegate(), 0, 0)
	l.Title = title
	l.SetShowHelp(false)
	return l
}

// ViewState returns the active view.
func (m *Model) ViewState() ViewState {
	return m.view
}

// Err returns the last fatal error.
func (m *Model) Err() error {
	return m.err
}

// Init initializes the TUI by fetching the account list.
func (m *Model) Init() tea.Cmd {
	return m.fetchUsers()
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.userList.SetSize(msg.Width-4, msg.Height-8)
		m.recordList.SetSize(msg.Width-4, msg.Height-8)
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case UserListView:
			return m.handleUserListKeys(msg)
		case RecordListView:
			return m.handleRecordListKeys(msg)
		case ConfirmView:
			return m.handleConfirmKeys(msg)
		case DeletingView:
			if key.Matches(msg, m.keys.quit) {
				return m, tea.Quit
			}
			return m, nil
		case ResultView:
			return m.handleResultKeys(msg)
		}

	case Msg:
		return m.handleMsg(msg)
	}

	return m.updateLists(msg)
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgUsersFetched:
		p := msg.data.(usersPayload)
		if p.err != nil {
			m.err = p.err
			return m, nil
		}
		m.users = p.users
		items := make([]list.Item, len(p.users))
		for i, u := range p.users {
			items[i] = userItem{user: u}
		}
		m.userList.SetItems(items)
		m.userList.Title = fmt.Sprintf("Users (%d)", len(p.users))
		m.view = UserListView
		return m, nil

	case MsgRecordsFetched:
		p := msg.data.(recordsPayload)
		if p.err != nil {
			m.notice = fmt.Sprintf("failed to load records: %v", p.err)
			m.view = UserListView
			return m, nil
		}
		rows := formatter.RecordRows(p.records)
		items := make([]list.Item, len(rows))
		for i, row := range rows {
			items[i] = recordItem{row: row}
		}
		m.recordList.SetItems(items)
		m.recordList.Title = fmt.Sprintf("Play records of '%s'", m.selected.Username)
		m.favorites = p.favorites
		m.history = p.history
		m.view = RecordListView
		return m, nil

	case MsgUserDeleted:
		p := msg.data.(deletedPayload)
		m.deleted = p.username
		m.err = p.err
		m.view = ResultView
		return m, nil
	}
	return m, nil
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	if m.err != nil && m.view != ResultView {
		return styles.err.Render(fmt.Sprintf("Error: %v\n\nPress q to quit", m.err))
	}

	switch m.view {
	case UserListView:
		return m.renderUserList()
	case RecordListView:
		return m.renderRecordList()
	case ConfirmView:
		return m.renderConfirm()
	case DeletingView:
		return styles.title.Render(fmt.Sprintf("Deleting '%s'...", m.selected.Username))
	case ResultView:
		return m.renderResult()
	default:
		return ""
	}
}

func (m *Model) handleUserListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.userList.FilterState() == list.Filtering {
		return m.updateLists(msg)
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.restart):
		m.notice = ""
		return m, m.fetchUsers()
	case key.Matches(msg, m.keys.enter):
		if item, ok := m.userList.SelectedItem().(userItem); ok {
			u := item.user
			m.selected = &u
			m.notice = ""
			return m, m.fetchRecords(u.Username)
		}
		return m, nil
	}

	return m.updateLists(msg)
}

func (m *Model) handleRecordListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.recordList.FilterState() == list.Filtering {
		return m.updateLists(msg)
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.back):
		m.view = UserListView
		m.notice = ""
		return m, nil
	case key.Matches(msg, m.keys.delete):
		if m.selected.Role == models.RoleOwner {
			m.notice = "the owner account cannot be deleted"
			return m, nil
		}
		m.view = ConfirmView
		return m, nil
	}

	return m.updateLists(msg)
}

func (m *Model) handleConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit), key.Matches(msg, m.keys.no), key.Matches(msg, m.keys.back):
		m.view = RecordListView
		return m, nil
	case key.Matches(msg, m.keys.yes):
		m.view = DeletingView
		return m, m.deleteUser(m.selected.Username)
	}
	return m, nil
}

func (m *Model) handleResultKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.restart):
		m.selected = nil
		m.deleted = ""
		m.err = nil
		return m, m.fetchUsers()
	}
	return m, nil
}

func (m *Model) updateLists(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.view {
	case UserListView:
		m.userList, cmd = m.userList.Update(msg)
	case RecordListView:
		m.recordList, cmd = m.recordList.Update(msg)
	}
	return m, cmd
}

func (m *Model) fetchUsers() tea.Cmd {
	return func() tea.Msg {
		users, err := m.store.GetAllUsers(m.ctx)
		return usersFetchedMsg(users, err)
	}
}

func (m *Model) fetchRecords(username string) tea.Cmd {
	return func() tea.Msg {
		records, err := m.store.GetAllPlayRecords(m.ctx, username)
		if err != nil {
			return recordsFetchedMsg(nil, 0, 0, err)
		}
		favorites, err := m.store.GetAllFavorites(m.ctx, username)
		if err != nil {
			return recordsFetchedMsg(nil, 0, 0, err)
		}
		history, err := m.store.GetSearchHistory(m.ctx, username)
		if err != nil {
			return recordsFetchedMsg(nil, 0, 0, err)
		}
		return recordsFetchedMsg(records, len(favorites), len(history), nil)
	}
}

func (m *Model) deleteUser(username string) tea.Cmd {
	return func() tea.Msg {
		return userDeletedMsg(username, m.store.DeleteUser(m.ctx, username))
	}
}

func (m *Model) renderNotice() string {
	if m.notice == "" {
		return ""
	}
	return "\n" + styles.warn.Render(m.notice)
}

func (m *Model) renderUserList() string {
	helpKeys := []key.Binding{m.keys.enter, m.keys.restart, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)
	return fmt.Sprintf("%s%s\n\n%s", m.userList.View(), m.renderNotice(), helpView)
}

func (m *Model) renderRecordList() string {
	summary := styles.help.Render(fmt.Sprintf("%d favorites • %d searches", m.favorites, m.history))
	helpKeys := []key.Binding{m.keys.delete, m.keys.back, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)
	return fmt.Sprintf("%s\n%s%s\n\n%s", m.recordList.View(), summary, m.renderNotice(), helpView)
}

func (m *Model) renderConfirm() string {
	title := styles.title.Render(fmt.Sprintf("Delete user '%s'?", m.selected.Username))
	info := fmt.Sprintf(
		"\nThis removes the account and all of its data:\n  %d play records\n  %d favorites\n  %d search history entries\n  skip configs and settings\n",
		len(m.recordList.Items()), m.favorites, m.history,
	)

	helpKeys := []key.Binding{m.keys.yes, m.keys.no}
	helpView := m.help.ShortHelpView(helpKeys)

	return fmt.Sprintf("%s\n%s\n%s", title, info, helpView)
}

func (m *Model) renderResult() string {
	helpKeys := []key.Binding{m.keys.restart, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)

	if m.err != nil {
		return fmt.Sprintf("%s\n\n%s", styles.err.Render(fmt.Sprintf("Failed to delete '%s': %v", m.deleted, m.err)), helpView)
	}
	return fmt.Sprintf("%s\n\n%s", styles.ok.Render(fmt.Sprintf("✓ Deleted '%s'", m.deleted)), helpView)
}
