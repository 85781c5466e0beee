package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/desertthunder/katelyatv/internal/models"
	"github.com/desertthunder/katelyatv/internal/shared"
	"github.com/redis/go-redis/v9"
)

var (
	_ models.Storage          = (*KvrocksStorage)(nil)
	_ models.CredentialReader = (*KvrocksStorage)(nil)
)

// KvrocksStorage stores user data in Kvrocks.
//
// Accounts are JSON documents under "user:{name}" indexed by the "user_list" set. Skip configs
// live under the user prefix and are enumerated by key scan.
type KvrocksStorage struct {
	kvBase
}

// NewKvrocksStorage wraps an existing client. The client is not closed by the adapter.
func NewKvrocksStorage(client redis.UniversalClient, opts Options) *KvrocksStorage {
	return &KvrocksStorage{kvBase: newKVBase(client, kvrocksKeys, shared.BackendKvrocks, opts)}
}

// accountRecord is the stored account document. created_at has been written both as a number
// and as a string, so it is kept raw until read.
type accountRecord struct {
	Username  string          `json:"username"`
	Password  string          `json:"password"`
	CreatedAt json.RawMessage `json:"created_at,omitempty"`
}

func (a accountRecord) createdAtMillis() (int64, bool) {
	return shared.ParseTimestamp(strings.Trim(string(a.CreatedAt), `"`))
}

func (s *KvrocksStorage) account(ctx context.Context, op, username string) (*accountRecord, error) {
	return getJSON[accountRecord](ctx, &s.kvBase, op, kvrocksAccountKey(username))
}

func (s *KvrocksStorage) GetSkipConfig(ctx context.Context, username, key string) (*models.EpisodeSkipConfig, error) {
	return getJSON[models.EpisodeSkipConfig](ctx, &s.kvBase, "get_skip_config", s.keys.skipConfig(username, key))
}

func (s *KvrocksStorage) SetSkipConfig(ctx context.Context, username, key string, config *models.EpisodeSkipConfig) error {
	return s.setJSON(ctx, "set_skip_config", s.keys.skipConfig(username, key), config)
}

func (s *KvrocksStorage) GetAllSkipConfigs(ctx context.Context, username string) (map[string]*models.EpisodeSkipConfig, error) {
	prefix := s.keys.skipConfigPrefix(username)
	keys, err := s.scan(ctx, "get_all_skip_configs", prefixPattern(prefix))
	if err != nil {
		return nil, err
	}
	return mgetJSON[models.EpisodeSkipConfig](ctx, &s.kvBase, "get_all_skip_configs", prefix, keys)
}

func (s *KvrocksStorage) DeleteSkipConfig(ctx context.Context, username, key string) error {
	return s.del(ctx, "delete_skip_config", s.keys.skipConfig(username, key))
}

// RegisterUser writes the account document and adds the name to the index set.
// An existing account is overwritten; callers check existence first.
func (s *KvrocksStorage) RegisterUser(ctx context.Context, username, password string) error {
	const op = "register_user"
	rec := accountRecord{
		Username:  username,
		Password:  password,
		CreatedAt: json.RawMessage(strconv.FormatInt(shared.NowMillis(), 10)),
	}
	if err := s.setJSON(ctx, op, kvrocksAccountKey(username), rec); err != nil {
		return err
	}
	if err := s.do(ctx, op, func() error { return s.client.SAdd(ctx, kvrocksUserListKey, username).Err() }); err != nil {
		return fmt.Errorf("%s: failed to index %s: %w", op, username, err)
	}
	return nil
}

func (s *KvrocksStorage) VerifyUser(ctx context.Context, username, password string) (bool, error) {
	acc, err := s.account(ctx, "verify_user", username)
	if err != nil || acc == nil {
		return false, err
	}
	return acc.Password == password, nil
}

func (s *KvrocksStorage) CheckUserExist(ctx context.Context, username string) (bool, error) {
	n, err := doResult(ctx, &s.kvBase, "check_user_exist", func() (int64, error) {
		return s.client.Exists(ctx, kvrocksAccountKey(username)).Result()
	})
	if err != nil {
		return false, fmt.Errorf("check_user_exist %s: %w", username, err)
	}
	return n > 0, nil
}

// ChangePassword rewrites the account document. A missing account is left alone.
func (s *KvrocksStorage) ChangePassword(ctx context.Context, username, newPassword string) error {
	const op = "change_password"
	acc, err := s.account(ctx, op, username)
	if err != nil || acc == nil {
		return err
	}
	acc.Password = newPassword
	return s.setJSON(ctx, op, kvrocksAccountKey(username), acc)
}

func (s *KvrocksStorage) DeleteUser(ctx context.Context, username string) error {
	const op = "delete_user"
	if err := s.del(ctx, op, kvrocksAccountKey(username), s.keys.searchHistory(username), s.keys.settings(username)); err != nil {
		return err
	}
	if err := s.do(ctx, op, func() error { return s.client.SRem(ctx, kvrocksUserListKey, username).Err() }); err != nil {
		return fmt.Errorf("%s: failed to unindex %s: %w", op, username, err)
	}
	for _, prefix := range []string{
		s.keys.playRecordPrefix(username),
		s.keys.favoritePrefix(username),
		s.keys.skipConfigPrefix(username),
	} {
		if err := s.deleteByPrefix(ctx, op, prefix); err != nil {
			return err
		}
	}
	return nil
}

// GetAllUsers lists the index set sorted by name. An indexed name whose account document is
// missing or unreadable is still listed, with an empty creation time.
func (s *KvrocksStorage) GetAllUsers(ctx context.Context) ([]models.UserInfo, error) {
	const op = "get_all_users"
	names, err := doResult(ctx, &s.kvBase, op, func() ([]string, error) {
		return s.client.SMembers(ctx, kvrocksUserListKey).Result()
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	sort.Strings(names)

	keys := make([]string, len(names))
	for i, name := range names {
		keys[i] = kvrocksAccountKey(name)
	}
	vals, err := s.mgetRaw(ctx, op, keys)
	if err != nil {
		return nil, err
	}

	users := make([]models.UserInfo, 0, len(names))
	for i, name := range names {
		info := models.UserInfo{Username: name, Role: s.role(name)}
		if ms, ok := s.decodeCreatedAt(op, name, vals[i]); ok {
			info.CreatedAt = shared.FormatMillis(ms)
		}
		users = append(users, info)
	}
	return users, nil
}

func (s *KvrocksStorage) decodeCreatedAt(op, username string, v any) (int64, bool) {
	raw, ok := v.(string)
	if !ok {
		s.degraded(op, "account record missing", "username", username)
		return 0, false
	}
	var acc accountRecord
	if err := json.Unmarshal([]byte(raw), &acc); err != nil {
		s.degraded(op, "account record malformed", "username", username, "err", err)
		return 0, false
	}
	ms, ok := acc.createdAtMillis()
	if !ok {
		s.degraded(op, "account created_at unreadable", "username", username)
	}
	return ms, ok
}

func (s *KvrocksStorage) GetCredentials(ctx context.Context, username string) (string, int64, bool, error) {
	acc, err := s.account(ctx, "get_credentials", username)
	if err != nil || acc == nil {
		return "", 0, false, err
	}
	ms, _ := acc.createdAtMillis()
	return acc.Password, ms, true, nil
}
