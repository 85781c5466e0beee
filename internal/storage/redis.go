package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/desertthunder/katelyatv/internal/models"
	"github.com/desertthunder/katelyatv/internal/shared"
	"github.com/redis/go-redis/v9"
)

var (
	_ models.Storage          = (*RedisStorage)(nil)
	_ models.CredentialReader = (*RedisStorage)(nil)
)

// RedisStorage stores user data in Redis.
//
// Accounts are bare values ("u:{name}:pwd", "u:{name}:created_at") discovered by pattern scan.
// Skip configs are indexed per user by a set of sub-keys.
type RedisStorage struct {
	kvBase
}

// NewRedisStorage wraps an existing client. The client is not closed by the adapter.
func NewRedisStorage(client redis.UniversalClient, opts Options) *RedisStorage {
	return &RedisStorage{kvBase: newKVBase(client, redisKeys, shared.BackendRedis, opts)}
}

// getString reads a plain value. A missing key yields ("", false, nil).
func (s *RedisStorage) getString(ctx context.Context, op, key string) (string, bool, error) {
	v, err := doResult(ctx, &s.kvBase, op, func() (string, error) {
		return s.client.Get(ctx, key).Result()
	})
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%s %s: %w", op, key, err)
	}
	return v, true, nil
}

func (s *RedisStorage) setString(ctx context.Context, op, key, value string) error {
	if err := s.do(ctx, op, func() error { return s.client.Set(ctx, key, value, 0).Err() }); err != nil {
		return fmt.Errorf("%s %s: %w", op, key, err)
	}
	return nil
}

func (s *RedisStorage) GetSkipConfig(ctx context.Context, username, key string) (*models.EpisodeSkipConfig, error) {
	return getJSON[models.EpisodeSkipConfig](ctx, &s.kvBase, "get_skip_config", s.keys.skipConfig(username, key))
}

// SetSkipConfig writes the record, then adds key to the user's index set.
func (s *RedisStorage) SetSkipConfig(ctx context.Context, username, key string, config *models.EpisodeSkipConfig) error {
	const op = "set_skip_config"
	if err := s.setJSON(ctx, op, s.keys.skipConfig(username, key), config); err != nil {
		return err
	}
	index := redisSkipConfigIndexKey(username)
	if err := s.do(ctx, op, func() error { return s.client.SAdd(ctx, index, key).Err() }); err != nil {
		return fmt.Errorf("%s %s: %w", op, index, err)
	}
	return nil
}

// GetAllSkipConfigs reads the index set and fetches the members. Index entries whose record is
// gone are skipped.
func (s *RedisStorage) GetAllSkipConfigs(ctx context.Context, username string) (map[string]*models.EpisodeSkipConfig, error) {
	const op = "get_all_skip_configs"
	members, err := s.skipConfigIndex(ctx, op, username)
	if err != nil {
		return nil, err
	}

	prefix := s.keys.skipConfigPrefix(username)
	keys := make([]string, len(members))
	for i, m := range members {
		keys[i] = prefix + m
	}
	return mgetJSON[models.EpisodeSkipConfig](ctx, &s.kvBase, op, prefix, keys)
}

func (s *RedisStorage) skipConfigIndex(ctx context.Context, op, username string) ([]string, error) {
	index := redisSkipConfigIndexKey(username)
	members, err := doResult(ctx, &s.kvBase, op, func() ([]string, error) {
		return s.client.SMembers(ctx, index).Result()
	})
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", op, index, err)
	}
	return members, nil
}

func (s *RedisStorage) DeleteSkipConfig(ctx context.Context, username, key string) error {
	const op = "delete_skip_config"
	if err := s.del(ctx, op, s.keys.skipConfig(username, key)); err != nil {
		return err
	}
	index := redisSkipConfigIndexKey(username)
	if err := s.do(ctx, op, func() error { return s.client.SRem(ctx, index, key).Err() }); err != nil {
		return fmt.Errorf("%s %s: %w", op, index, err)
	}
	return nil
}

// RegisterUser writes the password and creation time. An existing account is overwritten.
func (s *RedisStorage) RegisterUser(ctx context.Context, username, password string) error {
	const op = "register_user"
	if err := s.setString(ctx, op, redisPasswordKey(username), password); err != nil {
		return err
	}
	return s.setString(ctx, op, redisCreatedAtKey(username), strconv.FormatInt(shared.NowMillis(), 10))
}

func (s *RedisStorage) VerifyUser(ctx context.Context, username, password string) (bool, error) {
	stored, ok, err := s.getString(ctx, "verify_user", redisPasswordKey(username))
	if err != nil || !ok {
		return false, err
	}
	return stored == password, nil
}

func (s *RedisStorage) CheckUserExist(ctx context.Context, username string) (bool, error) {
	n, err := doResult(ctx, &s.kvBase, "check_user_exist", func() (int64, error) {
		return s.client.Exists(ctx, redisPasswordKey(username)).Result()
	})
	if err != nil {
		return false, fmt.Errorf("check_user_exist %s: %w", username, err)
	}
	return n > 0, nil
}

// ChangePassword overwrites the stored password unconditionally.
func (s *RedisStorage) ChangePassword(ctx context.Context, username, newPassword string) error {
	return s.setString(ctx, "change_password", redisPasswordKey(username), newPassword)
}

// DeleteUser removes the account and every per-user record. Skip configs are removed through
// the index and then by prefix, which also catches entries the index lost track of.
func (s *RedisStorage) DeleteUser(ctx context.Context, username string) error {
	const op = "delete_user"
	if err := s.del(ctx, op,
		redisPasswordKey(username),
		redisCreatedAtKey(username),
		s.keys.searchHistory(username),
		s.keys.settings(username),
	); err != nil {
		return err
	}

	members, err := s.skipConfigIndex(ctx, op, username)
	if err != nil {
		return err
	}
	skipKeys := make([]string, 0, len(members)+1)
	for _, m := range members {
		skipKeys = append(skipKeys, s.keys.skipConfig(username, m))
	}
	skipKeys = append(skipKeys, redisSkipConfigIndexKey(username))
	if err := s.del(ctx, op, skipKeys...); err != nil {
		return err
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

// GetAllUsers discovers accounts by scanning password keys and returns them sorted by name.
// A missing or unreadable creation time is reported as empty.
func (s *RedisStorage) GetAllUsers(ctx context.Context) ([]models.UserInfo, error) {
	const op = "get_all_users"
	keys, err := s.scan(ctx, op, redisPasswordPattern)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(keys))
	for _, k := range keys {
		if name, ok := redisUsernameFromPasswordKey(k); ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	createdKeys := make([]string, len(names))
	for i, name := range names {
		createdKeys[i] = redisCreatedAtKey(name)
	}
	vals, err := s.mgetRaw(ctx, op, createdKeys)
	if err != nil {
		return nil, err
	}

	users := make([]models.UserInfo, 0, len(names))
	for i, name := range names {
		info := models.UserInfo{Username: name, Role: s.role(name)}
		raw, _ := vals[i].(string)
		if ms, ok := shared.ParseTimestamp(strings.TrimSpace(raw)); ok {
			info.CreatedAt = shared.FormatMillis(ms)
		} else {
			s.degraded(op, "account created_at unreadable", "username", name, "value", raw)
		}
		users = append(users, info)
	}
	return users, nil
}

func (s *RedisStorage) GetCredentials(ctx context.Context, username string) (string, int64, bool, error) {
	const op = "get_credentials"
	password, ok, err := s.getString(ctx, op, redisPasswordKey(username))
	if err != nil || !ok {
		return "", 0, false, err
	}
	raw, _, err := s.getString(ctx, op, redisCreatedAtKey(username))
	if err != nil {
		return "", 0, false, err
	}
	ms, _ := shared.ParseTimestamp(strings.TrimSpace(raw))
	return password, ms, true, nil
}
