package tasks

import (
	"fmt"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	FetchUsers Phase = iota
	CollectUsers
	RestoreUsers
	CopyAdminConfig
	WriteSnapshot
	ReadSnapshot
)

func (p Phase) String() string {
	switch p {
	case FetchUsers:
		return "fetch_users"
	case CollectUsers:
		return "collect_users"
	case RestoreUsers:
		return "restore_users"
	case CopyAdminConfig:
		return "copy_admin_config"
	case WriteSnapshot:
		return "write_snapshot"
	case ReadSnapshot:
		return "read_snapshot"
	default:
		return ""
	}
}

func fetchUsersUpdate(count int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchUsers,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Found %d users", count),
	}
}

func collectUserUpdate(step, total int, username string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   CollectUsers,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Read %s", step, total, username),
	}
}

func restoreUserUpdate(step, total int, user *UserSnapshot) ProgressUpdate {
	return ProgressUpdate{
		Phase:   RestoreUsers,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %s (%d records, %d favorites)", step, total, user.Username, len(user.PlayRecords), len(user.Favorites)),
		Data:    user.Username,
	}
}

func adminConfigUpdate(found bool) ProgressUpdate {
	msg := "No admin config to copy"
	if found {
		msg = "Copied admin config"
	}
	return ProgressUpdate{Phase: CopyAdminConfig, Step: 1, Total: 1, Message: msg}
}

func snapshotUpdate(phase Phase, users int) ProgressUpdate {
	verb := "Wrote"
	if phase == ReadSnapshot {
		verb = "Read"
	}
	return ProgressUpdate{
		Phase:   phase,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("%s snapshot with %d users", verb, users),
	}
}
