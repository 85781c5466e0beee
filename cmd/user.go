package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/katelyatv/internal/formatter"
	"github.com/desertthunder/katelyatv/internal/shared"
	"github.com/urfave/cli/v3"
)

func requireUsername(cmd *cli.Command) (string, error) {
	username := cmd.StringArg("username")
	if username == "" {
		return "", fmt.Errorf("%w: username", shared.ErrMissingArgument)
	}
	return username, nil
}

// UserList prints every account.
func (r *Runner) UserList(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	store, release, err := r.openStorage(ctx, cmd.String("backend"))
	if err != nil {
		return err
	}
	defer release()

	users, err := store.GetAllUsers(ctx)
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}
	return formatter.WriteUsers(r.output, users, format)
}

// UserAdd registers an account.
func (r *Runner) UserAdd(ctx context.Context, cmd *cli.Command) error {
	username, err := requireUsername(cmd)
	if err != nil {
		return err
	}
	if err := shared.ValidateUsername(username); err != nil {
		return err
	}
	if username == r.config.Auth.OwnerName {
		return fmt.Errorf("%w: %s is the owner account", shared.ErrUserExists, username)
	}

	store, release, err := r.openStorage(ctx, cmd.String("backend"))
	if err != nil {
		return err
	}
	defer release()

	exists, err := store.CheckUserExist(ctx, username)
	if err != nil {
		return fmt.Errorf("failed to check user: %w", err)
	}
	if exists {
		return fmt.Errorf("%w: %s", shared.ErrUserExists, username)
	}

	if err := store.RegisterUser(ctx, username, cmd.String("password")); err != nil {
		return fmt.Errorf("failed to register user: %w", err)
	}
	r.logger.Info("registered user", "username", username)
	return r.writePlain("✓ Registered %s\n", username)
}

// UserDelete removes an account and every record stored for it.
func (r *Runner) UserDelete(ctx context.Context, cmd *cli.Command) error {
	username, err := requireUsername(cmd)
	if err != nil {
		return err
	}

	store, release, err := r.openStorage(ctx, cmd.String("backend"))
	if err != nil {
		return err
	}
	defer release()

	exists, err := store.CheckUserExist(ctx, username)
	if err != nil {
		return fmt.Errorf("failed to check user: %w", err)
	}
	if !exists {
		return fmt.Errorf("%w: %s", shared.ErrUserNotFound, username)
	}

	if err := store.DeleteUser(ctx, username); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	r.logger.Info("deleted user", "username", username)
	return r.writePlain("✓ Deleted %s\n", username)
}

// UserPasswd changes an account's password.
func (r *Runner) UserPasswd(ctx context.Context, cmd *cli.Command) error {
	username, err := requireUsername(cmd)
	if err != nil {
		return err
	}
	password := cmd.String("password")
	if password == "" {
		return fmt.Errorf("%w: password", shared.ErrMissingArgument)
	}

	store, release, err := r.openStorage(ctx, cmd.String("backend"))
	if err != nil {
		return err
	}
	defer release()

	exists, err := store.CheckUserExist(ctx, username)
	if err != nil {
		return fmt.Errorf("failed to check user: %w", err)
	}
	if !exists {
		return fmt.Errorf("%w: %s", shared.ErrUserNotFound, username)
	}

	if err := store.ChangePassword(ctx, username, password); err != nil {
		return fmt.Errorf("failed to change password: %w", err)
	}
	return r.writePlain("✓ Password changed for %s\n", username)
}

// UserRecords prints an account's play records.
func (r *Runner) UserRecords(ctx context.Context, cmd *cli.Command) error {
	username, err := requireUsername(cmd)
	if err != nil {
		return err
	}
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	store, release, err := r.openStorage(ctx, cmd.String("backend"))
	if err != nil {
		return err
	}
	defer release()

	records, err := store.GetAllPlayRecords(ctx, username)
	if err != nil {
		return fmt.Errorf("failed to read play records: %w", err)
	}
	return formatter.WriteRecords(r.output, records, format)
}
