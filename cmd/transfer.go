package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/desertthunder/katelyatv/internal/shared"
	"github.com/desertthunder/katelyatv/internal/tasks"
	"github.com/urfave/cli/v3"
)

func (r *Runner) engineFor(cmd *cli.Command) *tasks.Engine {
	return tasks.NewEngine(tasks.EngineOpts{
		Workers:   int(cmd.Int("workers")),
		RateLimit: cmd.Float("rate"),
		Logger:    r.logger,
	})
}

// printProgress renders updates to w until the returned channel is closed; wait blocks until the
// last update is written.
func (r *Runner) printProgress(w io.Writer) (progress chan tasks.ProgressUpdate, wait func()) {
	progress = make(chan tasks.ProgressUpdate, 50)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for update := range progress {
			switch update.Phase {
			case tasks.FetchUsers, tasks.ReadSnapshot:
				fmt.Fprintf(w, "📥 %s\n", update.Message)
			case tasks.CollectUsers, tasks.RestoreUsers:
				fmt.Fprintf(w, "   [%d/%d] %s\n", update.Step, update.Total, update.Message)
			case tasks.CopyAdminConfig:
				fmt.Fprintf(w, "⚙  %s\n", update.Message)
			case tasks.WriteSnapshot:
				fmt.Fprintf(w, "📝 %s\n", update.Message)
			}
		}
	}()

	return progress, func() {
		close(progress)
		<-done
	}
}

func (r *Runner) writeResult(title string, result *tasks.Result) {
	r.writePlain("\n")
	r.writePlainHeader(title)
	r.writePlain("Users: %d\n", result.Users)
	r.writePlain("Play records: %d\n", result.PlayRecords)
	r.writePlain("Favorites: %d\n", result.Favorites)
	r.writePlain("Skip configs: %d\n", result.SkipConfigs)
	r.writePlain("Search history entries: %d\n", result.SearchEntries)
	r.writePlain("Admin config copied: %v\n", result.AdminConfig)
	r.writePlain("Duration: %s\n", result.Duration.Round(time.Millisecond))

	if len(result.SkippedAccounts) > 0 {
		r.writePlain("\nData restored without an account (no password available) for %d users:\n", len(result.SkippedAccounts))
		for _, u := range result.SkippedAccounts {
			r.writePlain("  - %s\n", u)
		}
	}
}

// Migrate copies every user and the admin config between two backends.
func (r *Runner) Migrate(ctx context.Context, cmd *cli.Command) error {
	from, to := cmd.String("from"), cmd.String("to")
	if from == to {
		return fmt.Errorf("%w: --from and --to are both %q", shared.ErrInvalidArgument, from)
	}

	src, releaseSrc, err := r.openStorage(ctx, from)
	if err != nil {
		return err
	}
	defer releaseSrc()

	dst, releaseDst, err := r.openStorage(ctx, to)
	if err != nil {
		return err
	}
	defer releaseDst()

	r.logger.Info("starting migration", "from", from, "to", to)
	r.writePlain("Migrating %s → %s\n\n", from, to)

	progress, wait := r.printProgress(r.output)
	result, err := r.engineFor(cmd).Migrate(ctx, src, dst, progress)
	wait()
	if err != nil {
		return err
	}

	r.writeResult("Migration Complete!", result)
	return nil
}

// Export writes a JSON snapshot to --output or stdout.
func (r *Runner) Export(ctx context.Context, cmd *cli.Command) error {
	store, release, err := r.openStorage(ctx, cmd.String("backend"))
	if err != nil {
		return err
	}
	defer release()

	var (
		w      = r.output
		status = io.Discard
	)
	if path := cmd.String("output"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w, status = f, r.output
	}

	progress, wait := r.printProgress(status)
	snap, err := r.engineFor(cmd).Export(ctx, store, w, progress)
	wait()
	if err != nil {
		return err
	}

	r.logger.Info("export complete", "users", len(snap.Users))
	if status != io.Discard {
		r.writePlain("\n✓ Exported %d users to %s\n", len(snap.Users), cmd.String("output"))
	}
	return nil
}

// Import restores a JSON snapshot from --input or stdin.
func (r *Runner) Import(ctx context.Context, cmd *cli.Command) error {
	store, release, err := r.openStorage(ctx, cmd.String("backend"))
	if err != nil {
		return err
	}
	defer release()

	in := r.input
	if path := cmd.String("input"); path != "" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open snapshot: %w", err)
		}
		defer f.Close()
		in = f
	}

	progress, wait := r.printProgress(r.output)
	result, err := r.engineFor(cmd).Import(ctx, store, in, progress)
	wait()
	if err != nil {
		return err
	}

	r.writeResult("Import Complete!", result)
	return nil
}
