// Package ui implements an interactive terminal browser for stored accounts using bubbletea's Elm architecture.
//
// The TUI provides a multi-view workflow:
//  1. [UserListView] : Browse accounts with their role and creation time
//  2. [RecordListView] : Inspect a user's play records, most recent first, with favorite and search counts
//  3. [ConfirmView] : Confirm deleting the user
//  4. [DeletingView] : Wait for the backend to remove every record of the user
//  5. [ResultView] : Report the outcome
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern, receiving backend results via the
// [Msg] union type. Every backend call runs as a [tea.Cmd], so the UI never blocks on storage.
//
// Keyboard navigation uses vim-style bindings (j/k, enter, esc, d, y/n, r, q) with contextual help displayed via
// charmbracelet/bubbles/help.
package ui
