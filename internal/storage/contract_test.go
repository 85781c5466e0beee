package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/desertthunder/katelyatv/internal/models"
	"github.com/desertthunder/katelyatv/internal/retry"
	"github.com/desertthunder/katelyatv/internal/shared"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOptions() Options {
	return Options{OwnerName: "admin", Retry: retry.Config{MaxAttempts: 1}}
}

func newTestClient(t *testing.T, mr *miniredis.Miniredis) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { client.Close() })
	return client
}

func newKvrocksTestStorage(t *testing.T) (*KvrocksStorage, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	return NewKvrocksStorage(newTestClient(t, mr), testOptions()), mr
}

func newRedisTestStorage(t *testing.T) (*RedisStorage, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	return NewRedisStorage(newTestClient(t, mr), testOptions()), mr
}

func newSQLiteTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	db, err := shared.NewDatabase(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, shared.RunMigrations(context.Background(), db))
	return NewSQLiteStorage(db, testOptions())
}

// backends returns a constructor per adapter; every contract test runs against each.
func backends(opts Options) map[string]func(t *testing.T) Backend {
	return map[string]func(t *testing.T) Backend{
		"kvrocks": func(t *testing.T) Backend { return NewKvrocksStorage(newTestClient(t, miniredis.RunT(t)), opts) },
		"redis":   func(t *testing.T) Backend { return NewRedisStorage(newTestClient(t, miniredis.RunT(t)), opts) },
		"sqlite": func(t *testing.T) Backend {
			db, err := shared.NewDatabase(":memory:")
			require.NoError(t, err)
			t.Cleanup(func() { db.Close() })
			require.NoError(t, shared.RunMigrations(context.Background(), db))
			return NewSQLiteStorage(db, opts)
		},
	}
}

func forEachBackend(t *testing.T, fn func(t *testing.T, store Backend)) {
	forEachBackendWith(t, testOptions(), fn)
}

func forEachBackendWith(t *testing.T, opts Options, fn func(t *testing.T, store Backend)) {
	for name, open := range backends(opts) {
		t.Run(name, func(t *testing.T) {
			fn(t, open(t))
		})
	}
}

func TestPlayRecords(t *testing.T) {
	ctx := context.Background()

	forEachBackend(t, func(t *testing.T, store Backend) {
		t.Run("missing record is nil", func(t *testing.T) {
			rec, err := store.GetPlayRecord(ctx, "alice", "src+1")
			require.NoError(t, err)
			assert.Nil(t, rec)
		})

		t.Run("set get overwrite delete", func(t *testing.T) {
			first := &models.PlayRecord{Title: "Show", SourceName: "src", Index: 1, TotalEpisodes: 10, PlayTime: 30, TotalTime: 1200, SaveTime: 1}
			require.NoError(t, store.SetPlayRecord(ctx, "alice", "src+1", first))

			got, err := store.GetPlayRecord(ctx, "alice", "src+1")
			require.NoError(t, err)
			assert.Equal(t, first, got)

			second := *first
			second.Index, second.PlayTime = 2, 90
			require.NoError(t, store.SetPlayRecord(ctx, "alice", "src+1", &second))

			got, err = store.GetPlayRecord(ctx, "alice", "src+1")
			require.NoError(t, err)
			assert.Equal(t, 2, got.Index)
			assert.Equal(t, 90, got.PlayTime)

			require.NoError(t, store.DeletePlayRecord(ctx, "alice", "src+1"))
			got, err = store.GetPlayRecord(ctx, "alice", "src+1")
			require.NoError(t, err)
			assert.Nil(t, got)
		})

		t.Run("enumeration is per user", func(t *testing.T) {
			require.NoError(t, store.SetPlayRecord(ctx, "alice", "a+1", &models.PlayRecord{Title: "A1"}))
			require.NoError(t, store.SetPlayRecord(ctx, "alice", "a+2", &models.PlayRecord{Title: "A2"}))
			require.NoError(t, store.SetPlayRecord(ctx, "bob", "b+1", &models.PlayRecord{Title: "B1"}))

			all, err := store.GetAllPlayRecords(ctx, "alice")
			require.NoError(t, err)
			require.Len(t, all, 2)
			assert.Equal(t, "A1", all["a+1"].Title)
			assert.Equal(t, "A2", all["a+2"].Title)

			none, err := store.GetAllPlayRecords(ctx, "carol")
			require.NoError(t, err)
			assert.NotNil(t, none)
			assert.Empty(t, none)
		})

		t.Run("deleting a missing record succeeds", func(t *testing.T) {
			assert.NoError(t, store.DeletePlayRecord(ctx, "alice", "nope+0"))
		})
	})
}

func TestFavorites(t *testing.T) {
	ctx := context.Background()

	forEachBackend(t, func(t *testing.T, store Backend) {
		fav := &models.Favorite{Title: "Film", SourceName: "src", TotalEpisodes: 1, Year: "2020", SaveTime: 42}
		require.NoError(t, store.SetFavorite(ctx, "alice", "src+9", fav))

		got, err := store.GetFavorite(ctx, "alice", "src+9")
		require.NoError(t, err)
		assert.Equal(t, fav, got)

		other, err := store.GetFavorite(ctx, "bob", "src+9")
		require.NoError(t, err)
		assert.Nil(t, other)

		all, err := store.GetAllFavorites(ctx, "alice")
		require.NoError(t, err)
		assert.Len(t, all, 1)

		require.NoError(t, store.DeleteFavorite(ctx, "alice", "src+9"))
		all, err = store.GetAllFavorites(ctx, "alice")
		require.NoError(t, err)
		assert.Empty(t, all)
	})
}

func TestSearchHistory(t *testing.T) {
	ctx := context.Background()

	forEachBackend(t, func(t *testing.T, store Backend) {
		t.Run("empty for unknown user", func(t *testing.T) {
			history, err := store.GetSearchHistory(ctx, "nobody")
			require.NoError(t, err)
			assert.NotNil(t, history)
			assert.Empty(t, history)
		})

		t.Run("most recent first without duplicates", func(t *testing.T) {
			for _, kw := range []string{"a", "b", "c", "a"} {
				require.NoError(t, store.AddSearchHistory(ctx, "alice", kw))
			}
			history, err := store.GetSearchHistory(ctx, "alice")
			require.NoError(t, err)
			assert.Equal(t, []string{"a", "c", "b"}, history)
		})

		t.Run("capped at limit", func(t *testing.T) {
			for i := range 25 {
				require.NoError(t, store.AddSearchHistory(ctx, "bob", fmt.Sprintf("kw%02d", i)))
			}
			history, err := store.GetSearchHistory(ctx, "bob")
			require.NoError(t, err)
			require.Len(t, history, models.SearchHistoryLimit)
			assert.Equal(t, "kw24", history[0])
			assert.Equal(t, "kw05", history[len(history)-1])
		})

		t.Run("delete one then all", func(t *testing.T) {
			require.NoError(t, store.DeleteSearchHistory(ctx, "alice", "c"))
			history, err := store.GetSearchHistory(ctx, "alice")
			require.NoError(t, err)
			assert.Equal(t, []string{"a", "b"}, history)

			require.NoError(t, store.DeleteSearchHistory(ctx, "alice", ""))
			history, err = store.GetSearchHistory(ctx, "alice")
			require.NoError(t, err)
			assert.Empty(t, history)
		})

		t.Run("empty keyword is ignored", func(t *testing.T) {
			require.NoError(t, store.AddSearchHistory(ctx, "carol", ""))
			history, err := store.GetSearchHistory(ctx, "carol")
			require.NoError(t, err)
			assert.Empty(t, history)
		})
	})
}

func TestSkipConfigs(t *testing.T) {
	ctx := context.Background()

	forEachBackend(t, func(t *testing.T, store Backend) {
		cfg := &models.EpisodeSkipConfig{Enable: true, IntroEnd: 85.5, OutroStart: 1320, UpdatedAt: 7}
		require.NoError(t, store.SetSkipConfig(ctx, "alice", "src+1", cfg))
		require.NoError(t, store.SetSkipConfig(ctx, "alice", "src+2", &models.EpisodeSkipConfig{IntroEnd: 10}))

		got, err := store.GetSkipConfig(ctx, "alice", "src+1")
		require.NoError(t, err)
		assert.Equal(t, cfg, got)

		all, err := store.GetAllSkipConfigs(ctx, "alice")
		require.NoError(t, err)
		assert.Len(t, all, 2)
		assert.Contains(t, all, "src+2")

		require.NoError(t, store.DeleteSkipConfig(ctx, "alice", "src+2"))
		all, err = store.GetAllSkipConfigs(ctx, "alice")
		require.NoError(t, err)
		assert.Len(t, all, 1)

		missing, err := store.GetSkipConfig(ctx, "bob", "src+1")
		require.NoError(t, err)
		assert.Nil(t, missing)
	})
}

func TestAccounts(t *testing.T) {
	ctx := context.Background()

	forEachBackend(t, func(t *testing.T, store Backend) {
		t.Run("register and verify", func(t *testing.T) {
			require.NoError(t, store.RegisterUser(ctx, "alice", "pw1"))

			exists, err := store.CheckUserExist(ctx, "alice")
			require.NoError(t, err)
			assert.True(t, exists)

			ok, err := store.VerifyUser(ctx, "alice", "pw1")
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = store.VerifyUser(ctx, "alice", "wrong")
			require.NoError(t, err)
			assert.False(t, ok)

			ok, err = store.VerifyUser(ctx, "ghost", "pw1")
			require.NoError(t, err)
			assert.False(t, ok)
		})

		t.Run("change password", func(t *testing.T) {
			require.NoError(t, store.ChangePassword(ctx, "alice", "pw2"))

			ok, err := store.VerifyUser(ctx, "alice", "pw1")
			require.NoError(t, err)
			assert.False(t, ok)

			ok, err = store.VerifyUser(ctx, "alice", "pw2")
			require.NoError(t, err)
			assert.True(t, ok)
		})

		t.Run("listing is sorted with roles", func(t *testing.T) {
			require.NoError(t, store.RegisterUser(ctx, "bob", "x"))
			require.NoError(t, store.RegisterUser(ctx, "admin", "y"))

			users, err := store.GetAllUsers(ctx)
			require.NoError(t, err)
			require.Len(t, users, 3)

			assert.Equal(t, "admin", users[0].Username)
			assert.Equal(t, models.RoleOwner, users[0].Role)
			assert.Equal(t, "alice", users[1].Username)
			assert.Equal(t, models.RoleUser, users[1].Role)
			assert.Equal(t, "bob", users[2].Username)

			for _, u := range users {
				_, ok := shared.ParseTimestamp(u.CreatedAt)
				assert.True(t, ok, "created_at of %s should be RFC3339, got %q", u.Username, u.CreatedAt)
			}
		})

		t.Run("credentials", func(t *testing.T) {
			password, createdAt, ok, err := store.GetCredentials(ctx, "bob")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "x", password)
			assert.Positive(t, createdAt)

			_, _, ok, err = store.GetCredentials(ctx, "ghost")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	})
}

func TestOwnerRoleRequiresRegisteredOwner(t *testing.T) {
	ctx := context.Background()
	opts := testOptions()
	opts.OwnerName = "root"

	forEachBackendWith(t, opts, func(t *testing.T, store Backend) {
		for _, name := range []string{"admin", "alice", "bob"} {
			require.NoError(t, store.RegisterUser(ctx, name, "pw"))
		}

		users, err := store.GetAllUsers(ctx)
		require.NoError(t, err)
		require.Len(t, users, 3)
		for _, u := range users {
			assert.Equal(t, models.RoleUser, u.Role, "%s should not be the owner", u.Username)
		}

		require.NoError(t, store.RegisterUser(ctx, "root", "pw"))
		users, err = store.GetAllUsers(ctx)
		require.NoError(t, err)

		owners := 0
		for _, u := range users {
			if u.Role == models.RoleOwner {
				owners++
				assert.Equal(t, "root", u.Username)
			}
		}
		assert.Equal(t, 1, owners)
	})
}

func TestDeleteUserCascade(t *testing.T) {
	ctx := context.Background()

	forEachBackend(t, func(t *testing.T, store Backend) {
		for _, u := range []string{"alice", "bob"} {
			require.NoError(t, store.RegisterUser(ctx, u, "pw"))
			require.NoError(t, store.SetPlayRecord(ctx, u, "s+1", &models.PlayRecord{Title: u}))
			require.NoError(t, store.SetFavorite(ctx, u, "s+1", &models.Favorite{Title: u}))
			require.NoError(t, store.SetSkipConfig(ctx, u, "s+1", &models.EpisodeSkipConfig{Enable: true}))
			require.NoError(t, store.AddSearchHistory(ctx, u, "query"))
			require.NoError(t, store.UpdateUserSettings(ctx, u, models.PartialSettings{Theme: ptr("dark")}))
		}

		require.NoError(t, store.DeleteUser(ctx, "alice"))

		exists, err := store.CheckUserExist(ctx, "alice")
		require.NoError(t, err)
		assert.False(t, exists)

		records, err := store.GetAllPlayRecords(ctx, "alice")
		require.NoError(t, err)
		assert.Empty(t, records)

		favorites, err := store.GetAllFavorites(ctx, "alice")
		require.NoError(t, err)
		assert.Empty(t, favorites)

		skips, err := store.GetAllSkipConfigs(ctx, "alice")
		require.NoError(t, err)
		assert.Empty(t, skips)

		history, err := store.GetSearchHistory(ctx, "alice")
		require.NoError(t, err)
		assert.Empty(t, history)

		settings, err := store.GetUserSettings(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, models.DefaultUserSettings(), settings)

		users, err := store.GetAllUsers(ctx)
		require.NoError(t, err)
		require.Len(t, users, 1)
		assert.Equal(t, "bob", users[0].Username)

		bobRecords, err := store.GetAllPlayRecords(ctx, "bob")
		require.NoError(t, err)
		assert.Len(t, bobRecords, 1)

		bobSettings, err := store.GetUserSettings(ctx, "bob")
		require.NoError(t, err)
		assert.Equal(t, "dark", bobSettings.Theme)
	})
}

func TestUserSettings(t *testing.T) {
	ctx := context.Background()

	forEachBackend(t, func(t *testing.T, store Backend) {
		t.Run("defaults when unset", func(t *testing.T) {
			got, err := store.GetUserSettings(ctx, "alice")
			require.NoError(t, err)
			assert.Equal(t, models.DefaultUserSettings(), got)
		})

		t.Run("patch over stored over defaults", func(t *testing.T) {
			require.NoError(t, store.UpdateUserSettings(ctx, "alice", models.PartialSettings{Theme: ptr("dark")}))
			require.NoError(t, store.UpdateUserSettings(ctx, "alice", models.PartialSettings{AutoPlay: ptr(false)}))

			got, err := store.GetUserSettings(ctx, "alice")
			require.NoError(t, err)
			assert.Equal(t, "dark", got.Theme)
			assert.False(t, got.AutoPlay)
			assert.Equal(t, "zh-CN", got.Language)
			assert.True(t, got.FilterAdultContent)
		})

		t.Run("set replaces", func(t *testing.T) {
			want := models.UserSettings{Theme: "light", Language: "en", VideoQuality: "1080p"}
			require.NoError(t, store.SetUserSettings(ctx, "bob", want))

			got, err := store.GetUserSettings(ctx, "bob")
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	})
}

func TestAdminConfig(t *testing.T) {
	ctx := context.Background()

	forEachBackend(t, func(t *testing.T, store Backend) {
		got, err := store.GetAdminConfig(ctx)
		require.NoError(t, err)
		assert.Nil(t, got)

		cfg := &models.AdminConfig{
			SiteConfig:   models.SiteConfig{SiteName: "KatelyaTV"},
			UserConfig:   models.UserConfig{AllowRegister: true, Users: []models.AdminUserRef{{Username: "admin", Role: "owner"}}},
			SourceConfig: []models.SourceConfig{{Key: "src", Name: "Source", API: "https://example.com/api", From: "config"}},
		}
		require.NoError(t, store.SetAdminConfig(ctx, cfg))

		got, err = store.GetAdminConfig(ctx)
		require.NoError(t, err)
		assert.Equal(t, cfg, got)

		t.Run("undeclared members survive get then set", func(t *testing.T) {
			cfg := &models.AdminConfig{
				SiteConfig: models.SiteConfig{SiteName: "x", Extra: models.Extra{"DoubanProxy": json.RawMessage(`"https://proxy"`)}},
				Extra: models.Extra{
					"ConfigFile":  json.RawMessage(`"{\"cache_time\":7200}"`),
					"live_config": json.RawMessage(`[1]`),
				},
			}
			require.NoError(t, store.SetAdminConfig(ctx, cfg))

			got, err := store.GetAdminConfig(ctx)
			require.NoError(t, err)
			require.NoError(t, store.SetAdminConfig(ctx, got))

			got, err = store.GetAdminConfig(ctx)
			require.NoError(t, err)
			assert.Equal(t, cfg.Extra, got.Extra)
			assert.Equal(t, cfg.SiteConfig.Extra, got.SiteConfig.Extra)
		})
	})
}

func TestSkipConfigKeepsUndeclaredMembers(t *testing.T) {
	ctx := context.Background()

	forEachBackend(t, func(t *testing.T, store Backend) {
		cfg := &models.EpisodeSkipConfig{Enable: true, IntroEnd: 90, OutroStart: 1300, Extra: models.Extra{"segments": json.RawMessage(`[{"start":5,"end":10}]`)}}
		require.NoError(t, store.SetSkipConfig(ctx, "bob", "src+1", cfg))

		all, err := store.GetAllSkipConfigs(ctx, "bob")
		require.NoError(t, err)
		require.Contains(t, all, "src+1")
		assert.Equal(t, cfg, all["src+1"])
	})
}

func TestPing(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store Backend) {
		assert.NoError(t, store.Ping(context.Background()))
	})
}

func ptr[T any](v T) *T { return &v }
