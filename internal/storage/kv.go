package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/katelyatv/internal/models"
	"github.com/desertthunder/katelyatv/internal/retry"
	"github.com/desertthunder/katelyatv/internal/shared"
	"github.com/redis/go-redis/v9"
)

const (
	scanCount  = 200 // SCAN COUNT hint
	batchSize  = 500 // Keys per MGET / DEL call
	searchTrim = models.SearchHistoryLimit - 1
)

// kvBase implements the parts of [models.Storage] whose behavior is identical on both
// key-value backends: play records, favorites, search history, settings and admin config.
// Key strings still come from the backend's keyspace.
//
// Every backend call goes through [kvBase.do], which applies the retry policy and records metrics.
type kvBase struct {
	client  redis.UniversalClient
	keys    keyspace
	backend string
	owner   string
	retry   retry.Config
	logger  *log.Logger
	metrics *Metrics
}

func newKVBase(client redis.UniversalClient, keys keyspace, backend string, opts Options) kvBase {
	opts = opts.withDefaults()

	rc := opts.Retry
	if rc.Logger == nil {
		rc.Logger = opts.Logger
	}
	metrics, next := opts.Metrics, rc.OnRetry
	rc.OnRetry = func(op string, attempt int, err error) {
		metrics.retried(backend, op)
		if next != nil {
			next(op, attempt, err)
		}
	}

	return kvBase{
		client:  client,
		keys:    keys,
		backend: backend,
		owner:   opts.OwnerName,
		retry:   rc,
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}
}

func (b *kvBase) do(ctx context.Context, op string, fn func() error) error {
	start := time.Now()
	err := retry.Do(ctx, b.retry, op, fn)
	b.metrics.observe(b.backend, op, start, err)
	return err
}

func doResult[T any](ctx context.Context, b *kvBase, op string, fn func() (T, error)) (T, error) {
	var out T
	err := b.do(ctx, op, func() error {
		var err error
		out, err = fn()
		return err
	})
	return out, err
}

// degraded logs a best-effort fallback; the enclosing operation carries on.
func (b *kvBase) degraded(op, msg string, kv ...any) {
	b.logger.Warn(msg, append([]any{"backend", b.backend, "op", op}, kv...)...)
	b.metrics.degrade(b.backend, op)
}

func (b *kvBase) role(username string) string {
	if username == b.owner {
		return models.RoleOwner
	}
	return models.RoleUser
}

// getJSON fetches and decodes one record. A missing key yields (nil, nil).
func getJSON[T any](ctx context.Context, b *kvBase, op, key string) (*T, error) {
	raw, err := doResult(ctx, b, op, func() (string, error) {
		return b.client.Get(ctx, key).Result()
	})
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", op, key, err)
	}

	var v T
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", shared.ErrCorruptRecord, key, err)
	}
	return &v, nil
}

func (b *kvBase) setJSON(ctx context.Context, op, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if err := b.do(ctx, op, func() error { return b.client.Set(ctx, key, data, 0).Err() }); err != nil {
		return fmt.Errorf("%s %s: %w", op, key, err)
	}
	return nil
}

func (b *kvBase) del(ctx context.Context, op string, keys ...string) error {
	for start := 0; start < len(keys); start += batchSize {
		batch := keys[start:min(start+batchSize, len(keys))]
		if err := b.do(ctx, op, func() error { return b.client.Del(ctx, batch...).Err() }); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	return nil
}

// scan lists every key matching pattern. A failed iteration is retried from the start.
func (b *kvBase) scan(ctx context.Context, op, pattern string) ([]string, error) {
	keys, err := doResult(ctx, b, op, func() ([]string, error) {
		var keys []string
		iter := b.client.Scan(ctx, 0, pattern, scanCount).Iterator()
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
		}
		return keys, iter.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("%s scan %s: %w", op, pattern, err)
	}

	// SCAN may return a key more than once.
	slices.Sort(keys)
	return slices.Compact(keys), nil
}

// mgetRaw fetches many keys; missing keys come back as nil entries.
func (b *kvBase) mgetRaw(ctx context.Context, op string, keys []string) ([]any, error) {
	out := make([]any, 0, len(keys))
	for start := 0; start < len(keys); start += batchSize {
		batch := keys[start:min(start+batchSize, len(keys))]
		vals, err := doResult(ctx, b, op, func() ([]any, error) {
			return b.client.MGet(ctx, batch...).Result()
		})
		if err != nil {
			return nil, fmt.Errorf("%s mget: %w", op, err)
		}
		out = append(out, vals...)
	}
	return out, nil
}

// mgetJSON fetches and decodes keys into a map indexed by the key with prefix removed.
// Keys that vanished since they were listed and values that fail to decode are skipped.
func mgetJSON[T any](ctx context.Context, b *kvBase, op, prefix string, keys []string) (map[string]*T, error) {
	out := make(map[string]*T, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	vals, err := b.mgetRaw(ctx, op, keys)
	if err != nil {
		return nil, err
	}

	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var rec T
		if err := json.Unmarshal([]byte(s), &rec); err != nil {
			b.degraded(op, "skipping malformed record", "key", keys[i], "err", err)
			continue
		}
		out[strings.TrimPrefix(keys[i], prefix)] = &rec
	}
	return out, nil
}

func (b *kvBase) deleteByPrefix(ctx context.Context, op, prefix string) error {
	keys, err := b.scan(ctx, op, prefixPattern(prefix))
	if err != nil {
		return err
	}
	return b.del(ctx, op, keys...)
}

func (b *kvBase) GetPlayRecord(ctx context.Context, username, key string) (*models.PlayRecord, error) {
	return getJSON[models.PlayRecord](ctx, b, "get_play_record", b.keys.playRecord(username, key))
}

func (b *kvBase) SetPlayRecord(ctx context.Context, username, key string, record *models.PlayRecord) error {
	return b.setJSON(ctx, "set_play_record", b.keys.playRecord(username, key), record)
}

func (b *kvBase) GetAllPlayRecords(ctx context.Context, username string) (map[string]*models.PlayRecord, error) {
	prefix := b.keys.playRecordPrefix(username)
	keys, err := b.scan(ctx, "get_all_play_records", prefixPattern(prefix))
	if err != nil {
		return nil, err
	}
	return mgetJSON[models.PlayRecord](ctx, b, "get_all_play_records", prefix, keys)
}

func (b *kvBase) DeletePlayRecord(ctx context.Context, username, key string) error {
	return b.del(ctx, "delete_play_record", b.keys.playRecord(username, key))
}

func (b *kvBase) GetFavorite(ctx context.Context, username, key string) (*models.Favorite, error) {
	return getJSON[models.Favorite](ctx, b, "get_favorite", b.keys.favorite(username, key))
}

func (b *kvBase) SetFavorite(ctx context.Context, username, key string, favorite *models.Favorite) error {
	return b.setJSON(ctx, "set_favorite", b.keys.favorite(username, key), favorite)
}

func (b *kvBase) GetAllFavorites(ctx context.Context, username string) (map[string]*models.Favorite, error) {
	prefix := b.keys.favoritePrefix(username)
	keys, err := b.scan(ctx, "get_all_favorites", prefixPattern(prefix))
	if err != nil {
		return nil, err
	}
	return mgetJSON[models.Favorite](ctx, b, "get_all_favorites", prefix, keys)
}

func (b *kvBase) DeleteFavorite(ctx context.Context, username, key string) error {
	return b.del(ctx, "delete_favorite", b.keys.favorite(username, key))
}

func (b *kvBase) GetSearchHistory(ctx context.Context, username string) ([]string, error) {
	key := b.keys.searchHistory(username)
	history, err := doResult(ctx, b, "get_search_history", func() ([]string, error) {
		return b.client.LRange(ctx, key, 0, -1).Result()
	})
	if err != nil {
		return nil, fmt.Errorf("get_search_history %s: %w", key, err)
	}
	if history == nil {
		history = []string{}
	}
	return history, nil
}

// AddSearchHistory removes any earlier occurrence, pushes keyword to the front and trims the
// list to [models.SearchHistoryLimit]. The three calls are not atomic: concurrent adds for the
// same user can interleave, and the next add restores the invariants.
func (b *kvBase) AddSearchHistory(ctx context.Context, username, keyword string) error {
	if keyword == "" {
		return nil
	}
	key := b.keys.searchHistory(username)
	steps := []func() error{
		func() error { return b.client.LRem(ctx, key, 0, keyword).Err() },
		func() error { return b.client.LPush(ctx, key, keyword).Err() },
		func() error { return b.client.LTrim(ctx, key, 0, searchTrim).Err() },
	}
	for _, step := range steps {
		if err := b.do(ctx, "add_search_history", step); err != nil {
			return fmt.Errorf("add_search_history %s: %w", key, err)
		}
	}
	return nil
}

func (b *kvBase) DeleteSearchHistory(ctx context.Context, username, keyword string) error {
	key := b.keys.searchHistory(username)
	if keyword == "" {
		return b.del(ctx, "delete_search_history", key)
	}
	if err := b.do(ctx, "delete_search_history", func() error {
		return b.client.LRem(ctx, key, 0, keyword).Err()
	}); err != nil {
		return fmt.Errorf("delete_search_history %s: %w", key, err)
	}
	return nil
}

// storedSettings returns whatever is stored, or nil. Corrupt settings degrade to nil.
func (b *kvBase) storedSettings(ctx context.Context, op, username string) (*models.PartialSettings, error) {
	current, err := getJSON[models.PartialSettings](ctx, b, op, b.keys.settings(username))
	if errors.Is(err, shared.ErrCorruptRecord) {
		b.degraded(op, "ignoring corrupt settings", "username", username, "err", err)
		return nil, nil
	}
	return current, err
}

func (b *kvBase) GetUserSettings(ctx context.Context, username string) (models.UserSettings, error) {
	current, err := b.storedSettings(ctx, "get_user_settings", username)
	if err != nil {
		return models.UserSettings{}, err
	}
	return models.MergeUserSettings(models.DefaultUserSettings(), current, models.PartialSettings{}), nil
}

func (b *kvBase) SetUserSettings(ctx context.Context, username string, settings models.UserSettings) error {
	return b.setJSON(ctx, "set_user_settings", b.keys.settings(username), settings)
}

// UpdateUserSettings is read, merge, write-back with no concurrency check; the last writer wins.
func (b *kvBase) UpdateUserSettings(ctx context.Context, username string, patch models.PartialSettings) error {
	current, err := b.storedSettings(ctx, "update_user_settings", username)
	if err != nil {
		return err
	}
	merged := models.MergeUserSettings(models.DefaultUserSettings(), current, patch)
	return b.setJSON(ctx, "update_user_settings", b.keys.settings(username), merged)
}

func (b *kvBase) GetAdminConfig(ctx context.Context) (*models.AdminConfig, error) {
	return getJSON[models.AdminConfig](ctx, b, "get_admin_config", b.keys.adminConfig)
}

func (b *kvBase) SetAdminConfig(ctx context.Context, config *models.AdminConfig) error {
	return b.setJSON(ctx, "set_admin_config", b.keys.adminConfig, config)
}
