package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/katelyatv/internal/models"
	"github.com/desertthunder/katelyatv/internal/shared"
)

var (
	_ models.Storage          = (*SQLiteStorage)(nil)
	_ models.CredentialReader = (*SQLiteStorage)(nil)
)

// Tables holding one JSON document per (username, key).
const (
	playRecordsTable = "play_records"
	favoritesTable   = "favorites"
	skipConfigsTable = "skip_configs"
)

// SQLiteStorage implements [models.Storage] on a local SQLite database migrated with
// [shared.RunMigrations]. Local calls are not retried.
type SQLiteStorage struct {
	db     *sql.DB
	owner  string
	logger *log.Logger
}

// NewSQLiteStorage creates a new [SQLiteStorage] with the given database connection
func NewSQLiteStorage(db *sql.DB, opts Options) *SQLiteStorage {
	opts = opts.withDefaults()
	return &SQLiteStorage{db: db, owner: opts.OwnerName, logger: opts.Logger}
}

func getDocument[T any](ctx context.Context, db *sql.DB, table, username, key string) (*T, error) {
	query := fmt.Sprintf("SELECT data FROM %s WHERE username = ? AND key = ?", table)

	var data string
	err := db.QueryRowContext(ctx, query, username, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}

	var v T
	if err := json.Unmarshal([]byte(data), &v); err != nil {
		return nil, fmt.Errorf("%w: %s %s/%s: %v", shared.ErrCorruptRecord, table, username, key, err)
	}
	return &v, nil
}

func listDocuments[T any](ctx context.Context, s *SQLiteStorage, table, username string) (map[string]*T, error) {
	query := fmt.Sprintf("SELECT key, data FROM %s WHERE username = ?", table)

	rows, err := s.db.QueryContext(ctx, query, username)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer rows.Close()

	out := make(map[string]*T)
	for rows.Next() {
		var key, data string
		if err := rows.Scan(&key, &data); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", table, err)
		}
		var v T
		if err := json.Unmarshal([]byte(data), &v); err != nil {
			s.logger.Warn("skipping malformed record", "table", table, "username", username, "key", key, "err", err)
			continue
		}
		out[key] = &v
	}
	return out, rows.Err()
}

func (s *SQLiteStorage) putDocument(ctx context.Context, table, username, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s record: %w", table, err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (username, key, data) VALUES (?, ?, ?)
		ON CONFLICT (username, key) DO UPDATE SET data = excluded.data
	`, table)

	if _, err := s.db.ExecContext(ctx, query, username, key, string(data)); err != nil {
		return fmt.Errorf("failed to upsert %s record: %w", table, err)
	}
	return nil
}

func (s *SQLiteStorage) deleteDocument(ctx context.Context, table, username, key string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE username = ? AND key = ?", table)
	if _, err := s.db.ExecContext(ctx, query, username, key); err != nil {
		return fmt.Errorf("failed to delete %s record: %w", table, err)
	}
	return nil
}

func (s *SQLiteStorage) GetPlayRecord(ctx context.Context, username, key string) (*models.PlayRecord, error) {
	return getDocument[models.PlayRecord](ctx, s.db, playRecordsTable, username, key)
}

func (s *SQLiteStorage) SetPlayRecord(ctx context.Context, username, key string, record *models.PlayRecord) error {
	return s.putDocument(ctx, playRecordsTable, username, key, record)
}

func (s *SQLiteStorage) GetAllPlayRecords(ctx context.Context, username string) (map[string]*models.PlayRecord, error) {
	return listDocuments[models.PlayRecord](ctx, s, playRecordsTable, username)
}

func (s *SQLiteStorage) DeletePlayRecord(ctx context.Context, username, key string) error {
	return s.deleteDocument(ctx, playRecordsTable, username, key)
}

func (s *SQLiteStorage) GetFavorite(ctx context.Context, username, key string) (*models.Favorite, error) {
	return getDocument[models.Favorite](ctx, s.db, favoritesTable, username, key)
}

func (s *SQLiteStorage) SetFavorite(ctx context.Context, username, key string, favorite *models.Favorite) error {
	return s.putDocument(ctx, favoritesTable, username, key, favorite)
}

func (s *SQLiteStorage) GetAllFavorites(ctx context.Context, username string) (map[string]*models.Favorite, error) {
	return listDocuments[models.Favorite](ctx, s, favoritesTable, username)
}

func (s *SQLiteStorage) DeleteFavorite(ctx context.Context, username, key string) error {
	return s.deleteDocument(ctx, favoritesTable, username, key)
}

func (s *SQLiteStorage) GetSkipConfig(ctx context.Context, username, key string) (*models.EpisodeSkipConfig, error) {
	return getDocument[models.EpisodeSkipConfig](ctx, s.db, skipConfigsTable, username, key)
}

func (s *SQLiteStorage) SetSkipConfig(ctx context.Context, username, key string, config *models.EpisodeSkipConfig) error {
	return s.putDocument(ctx, skipConfigsTable, username, key, config)
}

func (s *SQLiteStorage) GetAllSkipConfigs(ctx context.Context, username string) (map[string]*models.EpisodeSkipConfig, error) {
	return listDocuments[models.EpisodeSkipConfig](ctx, s, skipConfigsTable, username)
}

func (s *SQLiteStorage) DeleteSkipConfig(ctx context.Context, username, key string) error {
	return s.deleteDocument(ctx, skipConfigsTable, username, key)
}

func (s *SQLiteStorage) GetSearchHistory(ctx context.Context, username string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT keyword FROM search_history
		WHERE username = ?
		ORDER BY id DESC
		LIMIT ?
	`, username, models.SearchHistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to query search history: %w", err)
	}
	defer rows.Close()

	history := []string{}
	for rows.Next() {
		var keyword string
		if err := rows.Scan(&keyword); err != nil {
			return nil, fmt.Errorf("failed to scan search history row: %w", err)
		}
		history = append(history, keyword)
	}
	return history, rows.Err()
}

// AddSearchHistory moves keyword to the front and trims the history, in one transaction.
func (s *SQLiteStorage) AddSearchHistory(ctx context.Context, username, keyword string) error {
	if keyword == "" {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM search_history WHERE username = ? AND keyword = ?", username, keyword); err != nil {
		return fmt.Errorf("failed to remove previous search entry: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO search_history (username, keyword) VALUES (?, ?)", username, keyword); err != nil {
		return fmt.Errorf("failed to insert search entry: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM search_history
		WHERE username = ? AND id NOT IN (
			SELECT id FROM search_history WHERE username = ? ORDER BY id DESC LIMIT ?
		)
	`, username, username, models.SearchHistoryLimit); err != nil {
		return fmt.Errorf("failed to trim search history: %w", err)
	}

	return tx.Commit()
}

func (s *SQLiteStorage) DeleteSearchHistory(ctx context.Context, username, keyword string) error {
	var err error
	if keyword == "" {
		_, err = s.db.ExecContext(ctx, "DELETE FROM search_history WHERE username = ?", username)
	} else {
		_, err = s.db.ExecContext(ctx, "DELETE FROM search_history WHERE username = ? AND keyword = ?", username, keyword)
	}
	if err != nil {
		return fmt.Errorf("failed to delete search history: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) RegisterUser(ctx context.Context, username, password string) error {
	query := `
		INSERT INTO users (username, password, created_at) VALUES (?, ?, ?)
		ON CONFLICT (username) DO UPDATE SET password = excluded.password, created_at = excluded.created_at
	`
	if _, err := s.db.ExecContext(ctx, query, username, password, shared.NowMillis()); err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) VerifyUser(ctx context.Context, username, password string) (bool, error) {
	stored, _, ok, err := s.GetCredentials(ctx, username)
	if err != nil || !ok {
		return false, err
	}
	return stored == password, nil
}

func (s *SQLiteStorage) CheckUserExist(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM users WHERE username = ?)", username).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to query user: %w", err)
	}
	return exists, nil
}

// ChangePassword updates the stored password. A missing account is left alone.
func (s *SQLiteStorage) ChangePassword(ctx context.Context, username, newPassword string) error {
	if _, err := s.db.ExecContext(ctx, "UPDATE users SET password = ? WHERE username = ?", newPassword, username); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return nil
}

// DeleteUser removes the account and every per-user row in one transaction.
func (s *SQLiteStorage) DeleteUser(ctx context.Context, username string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"users", playRecordsTable, favoritesTable, skipConfigsTable, "search_history", "user_settings"} {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE username = ?", table), username); err != nil {
			return fmt.Errorf("failed to delete from %s: %w", table, err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStorage) GetAllUsers(ctx context.Context) ([]models.UserInfo, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT username, created_at FROM users ORDER BY username")
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	users := []models.UserInfo{}
	for rows.Next() {
		var (
			username  string
			createdAt int64
		)
		if err := rows.Scan(&username, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		role := models.RoleUser
		if username == s.owner {
			role = models.RoleOwner
		}
		users = append(users, models.UserInfo{Username: username, Role: role, CreatedAt: shared.FormatMillis(createdAt)})
	}
	return users, rows.Err()
}

func (s *SQLiteStorage) GetCredentials(ctx context.Context, username string) (string, int64, bool, error) {
	var (
		password  string
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx, "SELECT password, created_at FROM users WHERE username = ?", username).Scan(&password, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", 0, false, nil
	}
	if err != nil {
		return "", 0, false, fmt.Errorf("failed to query user: %w", err)
	}
	return password, createdAt, true, nil
}

func (s *SQLiteStorage) GetAdminConfig(ctx context.Context) (*models.AdminConfig, error) {
	var data string
	err := s.db.QueryRowContext(ctx, "SELECT data FROM admin_config WHERE id = 1").Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query admin config: %w", err)
	}

	var config models.AdminConfig
	if err := json.Unmarshal([]byte(data), &config); err != nil {
		return nil, fmt.Errorf("%w: admin config: %v", shared.ErrCorruptRecord, err)
	}
	return &config, nil
}

func (s *SQLiteStorage) SetAdminConfig(ctx context.Context, config *models.AdminConfig) error {
	data, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to encode admin config: %w", err)
	}
	query := `
		INSERT INTO admin_config (id, data) VALUES (1, ?)
		ON CONFLICT (id) DO UPDATE SET data = excluded.data
	`
	if _, err := s.db.ExecContext(ctx, query, string(data)); err != nil {
		return fmt.Errorf("failed to save admin config: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) storedSettings(ctx context.Context, username string) (*models.PartialSettings, error) {
	var data string
	err := s.db.QueryRowContext(ctx, "SELECT data FROM user_settings WHERE username = ?", username).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user settings: %w", err)
	}

	var current models.PartialSettings
	if err := json.Unmarshal([]byte(data), &current); err != nil {
		s.logger.Warn("ignoring corrupt settings", "username", username, "err", err)
		return nil, nil
	}
	return &current, nil
}

func (s *SQLiteStorage) GetUserSettings(ctx context.Context, username string) (models.UserSettings, error) {
	current, err := s.storedSettings(ctx, username)
	if err != nil {
		return models.UserSettings{}, err
	}
	return models.MergeUserSettings(models.DefaultUserSettings(), current, models.PartialSettings{}), nil
}

func (s *SQLiteStorage) SetUserSettings(ctx context.Context, username string, settings models.UserSettings) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to encode user settings: %w", err)
	}
	query := `
		INSERT INTO user_settings (username, data) VALUES (?, ?)
		ON CONFLICT (username) DO UPDATE SET data = excluded.data
	`
	if _, err := s.db.ExecContext(ctx, query, username, string(data)); err != nil {
		return fmt.Errorf("failed to save user settings: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) UpdateUserSettings(ctx context.Context, username string, patch models.PartialSettings) error {
	current, err := s.storedSettings(ctx, username)
	if err != nil {
		return err
	}
	return s.SetUserSettings(ctx, username, models.MergeUserSettings(models.DefaultUserSettings(), current, patch))
}
