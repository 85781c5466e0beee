// package tasks copies user data between storage backends and to or from JSON snapshots.
package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/katelyatv/internal/models"
	"github.com/desertthunder/katelyatv/internal/shared"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// SnapshotVersion is written to every snapshot and checked on import.
const SnapshotVersion = 1

// Snapshot is the complete user data of one backend.
type Snapshot struct {
	Version     int                 `json:"version"`
	ExportedAt  string              `json:"exported_at"` // RFC3339
	AdminConfig *models.AdminConfig `json:"admin_config,omitempty"`
	Users       []UserSnapshot      `json:"users"`
}

// UserSnapshot is everything stored for one account.
type UserSnapshot struct {
	Username      string                               `json:"username"`
	Password      string                               `json:"password,omitempty"`   // Empty when the source could not expose it
	CreatedAt     int64                                `json:"created_at,omitempty"` // Unix millis
	PlayRecords   map[string]*models.PlayRecord        `json:"play_records"`
	Favorites     map[string]*models.Favorite          `json:"favorites"`
	SkipConfigs   map[string]*models.EpisodeSkipConfig `json:"skip_configs"`
	SearchHistory []string                             `json:"search_history"` // Most recent first
	Settings      *models.UserSettings                 `json:"settings,omitempty"`
}

// Result summarizes a restore.
type Result struct {
	Users           int      // Accounts written
	PlayRecords     int      // Play records written
	Favorites       int      // Favorites written
	SkipConfigs     int      // Skip configs written
	SearchEntries   int      // Search history entries written
	AdminConfig     bool     // Whether an admin config was copied
	SkippedAccounts []string // Users restored without an account because no password was available
	Duration        time.Duration
}

// EngineOpts configures an [Engine].
type EngineOpts struct {
	Workers   int     // Users processed concurrently (default: 4, max: 16)
	RateLimit float64 // Users started per second (default: unlimited)
	Logger    *log.Logger
}

// Engine moves user data between backends.
//
// Users are processed concurrently; the first failure cancels the remaining work.
// Progress is reported through an optional channel without ever blocking.
type Engine struct {
	workers int
	limiter *rate.Limiter
	logger  *log.Logger
}

// NewEngine creates an [Engine] with the given options.
func NewEngine(opts EngineOpts) *Engine {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.Workers > 16 {
		opts.Workers = 16
	}

	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	return &Engine{
		workers: opts.Workers,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
	}
}

// sendProgress sends a progress update through the channel without blocking.
func (e *Engine) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// Collect reads every user and the admin config from src.
//
// Passwords are included when src implements [models.CredentialReader].
func (e *Engine) Collect(ctx context.Context, src models.Storage, progress chan<- ProgressUpdate) (*Snapshot, error) {
	users, err := src.GetAllUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	e.sendProgress(progress, fetchUsersUpdate(len(users)))

	creds, _ := src.(models.CredentialReader)
	snap := &Snapshot{
		Version:    SnapshotVersion,
		ExportedAt: time.Now().UTC().Format(time.RFC3339),
		Users:      make([]UserSnapshot, len(users)),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	var done atomic.Int64
	for i, info := range users {
		g.Go(func() error {
			if err := e.limiter.Wait(gctx); err != nil {
				return err
			}
			user, err := collectUser(gctx, src, creds, info.Username)
			if err != nil {
				return fmt.Errorf("failed to read user %s: %w", info.Username, err)
			}
			snap.Users[i] = *user
			e.sendProgress(progress, collectUserUpdate(int(done.Add(1)), len(users), info.Username))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if snap.AdminConfig, err = src.GetAdminConfig(ctx); err != nil {
		return nil, fmt.Errorf("failed to read admin config: %w", err)
	}

	return snap, nil
}

func collectUser(ctx context.Context, src models.Storage, creds models.CredentialReader, username string) (*UserSnapshot, error) {
	user := &UserSnapshot{Username: username}

	if creds != nil {
		password, createdAt, ok, err := creds.GetCredentials(ctx, username)
		if err != nil {
			return nil, err
		}
		if ok {
			user.Password, user.CreatedAt = password, createdAt
		}
	}

	var err error
	if user.PlayRecords, err = src.GetAllPlayRecords(ctx, username); err != nil {
		return nil, err
	}
	if user.Favorites, err = src.GetAllFavorites(ctx, username); err != nil {
		return nil, err
	}
	if user.SkipConfigs, err = src.GetAllSkipConfigs(ctx, username); err != nil {
		return nil, err
	}
	if user.SearchHistory, err = src.GetSearchHistory(ctx, username); err != nil {
		return nil, err
	}
	settings, err := src.GetUserSettings(ctx, username)
	if err != nil {
		return nil, err
	}
	user.Settings = &settings

	return user, nil
}

// Restore writes a snapshot into dst. Existing records with the same keys are overwritten;
// everything else in dst is left alone.
//
// Accounts are re-registered, so their creation time becomes the time of the restore.
// Users without a password in the snapshot get their data but no account. A snapshot holding
// any invalid username is rejected before anything is written.
func (e *Engine) Restore(ctx context.Context, dst models.Storage, snap *Snapshot, progress chan<- ProgressUpdate) (*Result, error) {
	for i := range snap.Users {
		if err := shared.ValidateUsername(snap.Users[i].Username); err != nil {
			return nil, fmt.Errorf("snapshot user %d: %w", i, err)
		}
	}

	start := time.Now()
	result := &Result{}

	var (
		mu   sync.Mutex
		done atomic.Int64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for i := range snap.Users {
		user := &snap.Users[i]
		g.Go(func() error {
			if err := e.limiter.Wait(gctx); err != nil {
				return err
			}
			if err := restoreUser(gctx, dst, user); err != nil {
				return fmt.Errorf("failed to restore user %s: %w", user.Username, err)
			}

			mu.Lock()
			if user.Password != "" {
				result.Users++
			} else {
				result.SkippedAccounts = append(result.SkippedAccounts, user.Username)
			}
			result.PlayRecords += len(user.PlayRecords)
			result.Favorites += len(user.Favorites)
			result.SkipConfigs += len(user.SkipConfigs)
			result.SearchEntries += len(user.SearchHistory)
			mu.Unlock()

			e.sendProgress(progress, restoreUserUpdate(int(done.Add(1)), len(snap.Users), user))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return result, err
	}

	if snap.AdminConfig != nil {
		if err := dst.SetAdminConfig(ctx, snap.AdminConfig); err != nil {
			return result, fmt.Errorf("failed to write admin config: %w", err)
		}
		result.AdminConfig = true
	}
	e.sendProgress(progress, adminConfigUpdate(result.AdminConfig))

	slices.Sort(result.SkippedAccounts)
	for _, name := range result.SkippedAccounts {
		e.logger.Warn("restored data without account", "username", name)
	}

	result.Duration = time.Since(start)
	return result, nil
}

func restoreUser(ctx context.Context, dst models.Storage, user *UserSnapshot) error {
	username := user.Username
	if user.Password != "" {
		if err := dst.RegisterUser(ctx, username, user.Password); err != nil {
			return err
		}
	}

	for key, rec := range user.PlayRecords {
		if err := dst.SetPlayRecord(ctx, username, key, rec); err != nil {
			return err
		}
	}
	for key, fav := range user.Favorites {
		if err := dst.SetFavorite(ctx, username, key, fav); err != nil {
			return err
		}
	}
	for key, cfg := range user.SkipConfigs {
		if err := dst.SetSkipConfig(ctx, username, key, cfg); err != nil {
			return err
		}
	}

	// Oldest first, so the newest ends up in front.
	for i := len(user.SearchHistory) - 1; i >= 0; i-- {
		if err := dst.AddSearchHistory(ctx, username, user.SearchHistory[i]); err != nil {
			return err
		}
	}

	if user.Settings != nil {
		if err := dst.SetUserSettings(ctx, username, *user.Settings); err != nil {
			return err
		}
	}
	return nil
}

// Migrate copies every user and the admin config from src to dst.
func (e *Engine) Migrate(ctx context.Context, src, dst models.Storage, progress chan<- ProgressUpdate) (*Result, error) {
	start := time.Now()
	snap, err := e.Collect(ctx, src, progress)
	if err != nil {
		return nil, err
	}
	result, err := e.Restore(ctx, dst, snap, progress)
	if result != nil {
		result.Duration = time.Since(start)
	}
	return result, err
}

// Export writes a JSON snapshot of src to w.
func (e *Engine) Export(ctx context.Context, src models.Storage, w io.Writer, progress chan<- ProgressUpdate) (*Snapshot, error) {
	snap, err := e.Collect(ctx, src, progress)
	if err != nil {
		return nil, err
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		return nil, fmt.Errorf("failed to write snapshot: %w", err)
	}
	e.sendProgress(progress, snapshotUpdate(WriteSnapshot, len(snap.Users)))
	return snap, nil
}

// Import reads a JSON snapshot from r and restores it into dst.
func (e *Engine) Import(ctx context.Context, dst models.Storage, r io.Reader, progress chan<- ProgressUpdate) (*Result, error) {
	var snap Snapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return nil, fmt.Errorf("%w: failed to parse snapshot: %v", shared.ErrInvalidInput, err)
	}
	if snap.Version != SnapshotVersion {
		return nil, fmt.Errorf("%w: unsupported snapshot version %d", shared.ErrInvalidInput, snap.Version)
	}
	e.sendProgress(progress, snapshotUpdate(ReadSnapshot, len(snap.Users)))

	return e.Restore(ctx, dst, &snap, progress)
}
