package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/desertthunder/katelyatv/internal/models"
	"github.com/desertthunder/katelyatv/internal/retry"
	"github.com/desertthunder/katelyatv/internal/shared"
	"github.com/desertthunder/katelyatv/internal/storage"
	tu "github.com/desertthunder/katelyatv/internal/testing"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v3"
)

// testBackends holds one in-memory store per backend name.
type testBackends map[string]storage.Backend

func newTestBackends(t *testing.T) testBackends {
	t.Helper()
	opts := storage.Options{OwnerName: "admin", Retry: retry.Config{MaxAttempts: 1}}

	kv := miniredis.RunT(t)
	kvClient := redis.NewClient(&redis.Options{Addr: kv.Addr(), MaxRetries: -1})
	t.Cleanup(func() { kvClient.Close() })

	rd := miniredis.RunT(t)
	rdClient := redis.NewClient(&redis.Options{Addr: rd.Addr(), MaxRetries: -1})
	t.Cleanup(func() { rdClient.Close() })

	db, err := shared.NewDatabase(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := shared.RunMigrations(context.Background(), db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	return testBackends{
		shared.BackendKvrocks: storage.NewKvrocksStorage(kvClient, opts),
		shared.BackendRedis:   storage.NewRedisStorage(rdClient, opts),
		shared.BackendSQLite:  storage.NewSQLiteStorage(db, opts),
	}
}

func (b testBackends) open(_ context.Context, kind string) (storage.Backend, io.Closer, error) {
	if kind == "" {
		kind = shared.BackendKvrocks
	}
	store, ok := b[kind]
	if !ok {
		return nil, nil, shared.ErrUnknownBackend
	}
	return store, nil, nil
}

func newTestRunner(t *testing.T, backends testBackends, output io.Writer) *Runner {
	t.Helper()
	config := shared.DefaultConfig()
	config.Auth.OwnerName = "admin"
	return NewRunner(RunnerOpts{
		Config: config,
		Output: output,
		Open:   backends.open,
	})
}

// runArgs executes args against a fresh command tree built from the runner.
func runArgs(r *Runner, args ...string) error {
	app := &cli.Command{
		Name:     "katelyatv",
		Writer:   io.Discard,
		Commands: r.register(),
	}
	return app.Run(context.Background(), append([]string{"katelyatv"}, args...))
}

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with all dependencies provided", func(t *testing.T) {
			config := shared.DefaultConfig()
			logger := shared.NewLogger(nil)
			output := &bytes.Buffer{}

			runner := NewRunner(RunnerOpts{
				Config:     config,
				ConfigPath: "/test/path/config.toml",
				Logger:     logger,
				Output:     output,
			})

			if runner.config != config {
				t.Error("expected config to be set")
			}
			if runner.logger != logger {
				t.Error("expected logger to be set")
			}
			if runner.output != output {
				t.Error("expected output to be set")
			}
			if runner.configPath != "/test/path/config.toml" {
				t.Errorf("expected configPath to be set, got %s", runner.configPath)
			}
		})

		t.Run("with nil options uses defaults", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})

			if runner.config == nil {
				t.Error("expected default config to be set")
			}
			if runner.logger == nil {
				t.Error("expected default logger to be set")
			}
			if runner.output != os.Stdout {
				t.Error("expected output to default to os.Stdout")
			}
			if runner.input != os.Stdin {
				t.Error("expected input to default to os.Stdin")
			}
			if runner.registry == nil || runner.metrics == nil {
				t.Error("expected a metrics registry with storage metrics")
			}
			if runner.open == nil {
				t.Error("expected default open func")
			}
		})

		t.Run("default open rejects unknown backends", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})

			_, _, err := runner.openStorage(context.Background(), "mongo")
			if !errors.Is(err, shared.ErrUnknownBackend) {
				t.Errorf("expected ErrUnknownBackend, got %v", err)
			}
		})
	})

	t.Run("writePlain", func(t *testing.T) {
		t.Run("writes plain text successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writePlain("hello %s", "world"); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if output.String() != "hello world" {
				t.Errorf("expected 'hello world', got %q", output.String())
			}
		})

		t.Run("writePlainln surrounds text with newlines", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writePlainln("done"); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if output.String() != "\ndone\n" {
				t.Errorf("expected %q, got %q", "\ndone\n", output.String())
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writePlain("test")
			if err == nil {
				t.Fatal("expected error from failing writer")
			}
			if !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})
	})

	t.Run("register", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{})
		commands := runner.register()

		names := map[string]bool{}
		for _, cmd := range commands {
			names[cmd.Name] = true
		}
		for _, want := range []string{"serve", "user", "migrate", "export", "import", "setup", "tui"} {
			if !names[want] {
				t.Errorf("expected %s command to be registered", want)
			}
		}
	})

	t.Run("loadConfig", func(t *testing.T) {
		t.Run("missing file falls back to defaults and env", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})
			env := map[string]string{"STORAGE_TYPE": "redis", "USERNAME": "root"}

			err := runner.loadConfig(filepath.Join(t.TempDir(), "missing.toml"), func(k string) string { return env[k] })
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if runner.config.Storage.Type != shared.BackendRedis {
				t.Errorf("expected redis storage, got %s", runner.config.Storage.Type)
			}
			if runner.config.Auth.OwnerName != "root" {
				t.Errorf("expected owner root, got %s", runner.config.Auth.OwnerName)
			}
		})

		t.Run("reads the config file", func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := shared.CreateConfigFile(path); err != nil {
				t.Fatalf("failed to create config: %v", err)
			}
			runner := NewRunner(RunnerOpts{})

			if err := runner.loadConfig(path, func(string) string { return "" }); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if runner.configPath != path {
				t.Errorf("expected configPath %s, got %s", path, runner.configPath)
			}
		})

		t.Run("rejects an invalid backend", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})
			env := map[string]string{"STORAGE_TYPE": "mongo"}

			err := runner.loadConfig(filepath.Join(t.TempDir(), "missing.toml"), func(k string) string { return env[k] })
			if err == nil {
				t.Fatal("expected validation error")
			}
		})
	})
}

func TestUserCommands(t *testing.T) {
	backends := newTestBackends(t)
	output := &bytes.Buffer{}
	runner := newTestRunner(t, backends, output)

	t.Run("add registers an account", func(t *testing.T) {
		if err := runArgs(runner, "user", "add", "alice", "--password", "pw"); err != nil {
			t.Fatalf("user add failed: %v", err)
		}
		if !strings.Contains(output.String(), "Registered alice") {
			t.Errorf("expected confirmation, got %q", output.String())
		}
		ok, err := backends[shared.BackendKvrocks].VerifyUser(context.Background(), "alice", "pw")
		if err != nil || !ok {
			t.Errorf("expected alice to verify, got %v, %v", ok, err)
		}
	})

	t.Run("add rejects duplicates and the owner", func(t *testing.T) {
		err := runArgs(runner, "user", "add", "alice", "--password", "pw")
		if !errors.Is(err, shared.ErrUserExists) {
			t.Errorf("expected ErrUserExists, got %v", err)
		}
		err = runArgs(runner, "user", "add", "admin", "--password", "pw")
		if !errors.Is(err, shared.ErrUserExists) {
			t.Errorf("expected ErrUserExists for owner, got %v", err)
		}
	})

	t.Run("add rejects names that collide with the key layout", func(t *testing.T) {
		for _, name := range []string{"alice:pr", "al*ce", "bob smith"} {
			err := runArgs(runner, "user", "add", name, "--password", "pw")
			if !errors.Is(err, shared.ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput for %q, got %v", name, err)
			}
			exists, _ := backends[shared.BackendKvrocks].CheckUserExist(context.Background(), name)
			if exists {
				t.Errorf("expected %q not to be registered", name)
			}
		}
	})

	t.Run("add requires a username", func(t *testing.T) {
		err := runArgs(runner, "user", "add", "--password", "pw")
		if !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})

	t.Run("add targets the --backend store", func(t *testing.T) {
		if err := runArgs(runner, "user", "--backend", "sqlite", "add", "bob", "--password", "pw"); err != nil {
			t.Fatalf("user add failed: %v", err)
		}
		exists, err := backends[shared.BackendSQLite].CheckUserExist(context.Background(), "bob")
		if err != nil || !exists {
			t.Errorf("expected bob in sqlite, got %v, %v", exists, err)
		}
	})

	t.Run("list prints accounts", func(t *testing.T) {
		output.Reset()
		if err := runArgs(runner, "user", "list", "--format", "csv"); err != nil {
			t.Fatalf("user list failed: %v", err)
		}
		if !strings.Contains(output.String(), "alice") {
			t.Errorf("expected alice in output, got %q", output.String())
		}
	})

	t.Run("list rejects unknown formats", func(t *testing.T) {
		if err := runArgs(runner, "user", "list", "--format", "xml"); err == nil {
			t.Error("expected error for unknown format")
		}
	})

	t.Run("passwd changes the password", func(t *testing.T) {
		if err := runArgs(runner, "user", "passwd", "alice", "--password", "new"); err != nil {
			t.Fatalf("user passwd failed: %v", err)
		}
		ok, _ := backends[shared.BackendKvrocks].VerifyUser(context.Background(), "alice", "new")
		if !ok {
			t.Error("expected new password to verify")
		}

		err := runArgs(runner, "user", "passwd", "ghost", "--password", "new")
		if !errors.Is(err, shared.ErrUserNotFound) {
			t.Errorf("expected ErrUserNotFound, got %v", err)
		}
	})

	t.Run("records prints play records", func(t *testing.T) {
		ctx := context.Background()
		record := &models.PlayRecord{Title: "Show", SourceName: "src", Index: 2, TotalEpisodes: 10, SaveTime: 1}
		if err := backends[shared.BackendKvrocks].SetPlayRecord(ctx, "alice", "src+1", record); err != nil {
			t.Fatalf("SetPlayRecord failed: %v", err)
		}

		output.Reset()
		if err := runArgs(runner, "user", "records", "alice", "--format", "csv"); err != nil {
			t.Fatalf("user records failed: %v", err)
		}
		if !strings.Contains(output.String(), "Show") {
			t.Errorf("expected record title in output, got %q", output.String())
		}
	})

	t.Run("delete removes the account", func(t *testing.T) {
		if err := runArgs(runner, "user", "rm", "alice"); err != nil {
			t.Fatalf("user delete failed: %v", err)
		}
		exists, _ := backends[shared.BackendKvrocks].CheckUserExist(context.Background(), "alice")
		if exists {
			t.Error("expected alice to be deleted")
		}

		err := runArgs(runner, "user", "delete", "alice")
		if !errors.Is(err, shared.ErrUserNotFound) {
			t.Errorf("expected ErrUserNotFound, got %v", err)
		}
	})

	t.Run("storage errors are wrapped", func(t *testing.T) {
		failing := NewRunner(RunnerOpts{
			Output: io.Discard,
			Open: func(context.Context, string) (storage.Backend, io.Closer, error) {
				return nil, nil, tu.ErrBackendDown
			},
		})
		err := runArgs(failing, "user", "list")
		if !errors.Is(err, tu.ErrBackendDown) {
			t.Errorf("expected ErrBackendDown, got %v", err)
		}
		if !strings.Contains(err.Error(), "failed to open storage") {
			t.Errorf("expected open error, got %v", err)
		}
	})
}

func TestTransferCommands(t *testing.T) {
	ctx := context.Background()

	seed := func(t *testing.T, store models.Storage) {
		t.Helper()
		if err := store.RegisterUser(ctx, "alice", "pw"); err != nil {
			t.Fatalf("RegisterUser failed: %v", err)
		}
		if err := store.SetPlayRecord(ctx, "alice", "src+1", &models.PlayRecord{Title: "Show", Index: 1, TotalEpisodes: 3, SaveTime: 1}); err != nil {
			t.Fatalf("SetPlayRecord failed: %v", err)
		}
		if err := store.AddSearchHistory(ctx, "alice", "show"); err != nil {
			t.Fatalf("AddSearchHistory failed: %v", err)
		}
	}

	t.Run("migrate copies between backends", func(t *testing.T) {
		backends := newTestBackends(t)
		seed(t, backends[shared.BackendKvrocks])
		output := &bytes.Buffer{}
		runner := newTestRunner(t, backends, output)

		if err := runArgs(runner, "migrate", "--from", "kvrocks", "--to", "redis"); err != nil {
			t.Fatalf("migrate failed: %v", err)
		}
		if !strings.Contains(output.String(), "Migration Complete!") {
			t.Errorf("expected summary, got %q", output.String())
		}

		dst := backends[shared.BackendRedis]
		ok, err := dst.VerifyUser(ctx, "alice", "pw")
		if err != nil || !ok {
			t.Errorf("expected alice to verify on redis, got %v, %v", ok, err)
		}
		record, err := dst.GetPlayRecord(ctx, "alice", "src+1")
		if err != nil || record == nil || record.Title != "Show" {
			t.Errorf("expected migrated play record, got %+v, %v", record, err)
		}
	})

	t.Run("migrate rejects identical backends", func(t *testing.T) {
		runner := newTestRunner(t, newTestBackends(t), io.Discard)

		err := runArgs(runner, "migrate", "--from", "redis", "--to", "redis")
		if !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("migrate requires both flags", func(t *testing.T) {
		runner := newTestRunner(t, newTestBackends(t), io.Discard)

		if err := runArgs(runner, "migrate", "--from", "redis"); err == nil {
			t.Error("expected error for missing --to")
		}
	})

	t.Run("export and import round trip through a file", func(t *testing.T) {
		backends := newTestBackends(t)
		seed(t, backends[shared.BackendSQLite])
		output := &bytes.Buffer{}
		runner := newTestRunner(t, backends, output)
		path := filepath.Join(t.TempDir(), "snapshot.json")

		if err := runArgs(runner, "export", "--backend", "sqlite", "--output", path); err != nil {
			t.Fatalf("export failed: %v", err)
		}
		tu.AssertFileExists(t, path)
		if !strings.Contains(tu.MustReadFile(t, path), `"alice"`) {
			t.Error("expected alice in snapshot")
		}
		if !strings.Contains(output.String(), "Exported 1 users") {
			t.Errorf("expected export summary, got %q", output.String())
		}

		if err := runArgs(runner, "import", "-b", "kvrocks", "--input", path); err != nil {
			t.Fatalf("import failed: %v", err)
		}
		history, err := backends[shared.BackendKvrocks].GetSearchHistory(ctx, "alice")
		if err != nil || len(history) != 1 || history[0] != "show" {
			t.Errorf("expected imported search history, got %v, %v", history, err)
		}
	})

	t.Run("export to stdout writes only the snapshot", func(t *testing.T) {
		backends := newTestBackends(t)
		seed(t, backends[shared.BackendKvrocks])
		output := &bytes.Buffer{}
		runner := newTestRunner(t, backends, output)

		if err := runArgs(runner, "export"); err != nil {
			t.Fatalf("export failed: %v", err)
		}
		if !strings.HasPrefix(strings.TrimSpace(output.String()), "{") {
			t.Errorf("expected bare JSON on stdout, got %q", output.String())
		}
	})

	t.Run("import reads stdin", func(t *testing.T) {
		src := newTestBackends(t)
		seed(t, src[shared.BackendKvrocks])
		snapshot := &bytes.Buffer{}
		if err := runArgs(newTestRunner(t, src, snapshot), "export"); err != nil {
			t.Fatalf("export failed: %v", err)
		}

		dst := newTestBackends(t)
		config := shared.DefaultConfig()
		runner := NewRunner(RunnerOpts{Config: config, Output: io.Discard, Input: snapshot, Open: dst.open})
		if err := runArgs(runner, "import", "--backend", "redis"); err != nil {
			t.Fatalf("import failed: %v", err)
		}
		exists, err := dst[shared.BackendRedis].CheckUserExist(ctx, "alice")
		if err != nil || !exists {
			t.Errorf("expected alice on redis, got %v, %v", exists, err)
		}
	})

	t.Run("import rejects malformed input", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{
			Output: io.Discard,
			Input:  strings.NewReader("not json"),
			Open:   newTestBackends(t).open,
		})
		if err := runArgs(runner, "import"); err == nil {
			t.Error("expected error for malformed snapshot")
		}
	})
}

func TestSetupCommands(t *testing.T) {
	t.Run("config writes the template", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.toml")
		output := &bytes.Buffer{}
		runner := NewRunner(RunnerOpts{ConfigPath: path, Output: output})

		if err := runArgs(runner, "setup", "config"); err != nil {
			t.Fatalf("setup config failed: %v", err)
		}
		tu.AssertFileExists(t, path)
		if !strings.Contains(output.String(), "Next steps") {
			t.Errorf("expected next steps, got %q", output.String())
		}
		if _, err := shared.LoadConfig(path); err != nil {
			t.Errorf("expected written config to load, got %v", err)
		}
	})

	t.Run("database migrates, reports and rolls back", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "setup.db")
		output := &bytes.Buffer{}
		runner := NewRunner(RunnerOpts{Output: output})

		if err := runArgs(runner, "setup", "database", "--path", path); err != nil {
			t.Fatalf("setup database failed: %v", err)
		}
		tu.AssertFileExists(t, path)
		if strings.Contains(output.String(), "schema version 0") {
			t.Errorf("expected migrations to be applied, got %q", output.String())
		}

		output.Reset()
		if err := runArgs(runner, "setup", "database", "--path", path, "--status"); err != nil {
			t.Fatalf("setup database --status failed: %v", err)
		}
		status := output.String()

		output.Reset()
		if err := runArgs(runner, "setup", "database", "--path", path, "--rollback"); err != nil {
			t.Fatalf("setup database --rollback failed: %v", err)
		}
		if output.String() == status {
			t.Errorf("expected version to change after rollback, still %q", status)
		}
	})

	t.Run("database requires a path", func(t *testing.T) {
		config := shared.DefaultConfig()
		config.SQLite.Path = ""
		runner := NewRunner(RunnerOpts{Config: config, Output: io.Discard})

		err := runArgs(runner, "setup", "database")
		if !errors.Is(err, shared.ErrMissingConfig) {
			t.Errorf("expected ErrMissingConfig, got %v", err)
		}
	})
}
