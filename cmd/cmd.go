// submodule cmd contains command definitions
package main

import (
	"fmt"
	"strings"

	"github.com/desertthunder/katelyatv/internal/formatter"
	"github.com/urfave/cli/v3"
)

func backendFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "backend",
		Aliases: []string{"b"},
		Usage:   "Storage backend (kvrocks, redis or sqlite); defaults to storage.type",
	}
}

func formatFlag() cli.Flag {
	names := make([]string, len(formatter.Formats))
	for i, f := range formatter.Formats {
		names[i] = string(f)
	}
	return &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   fmt.Sprintf("Output format (%s)", strings.Join(names, ", ")),
		Value:   string(formatter.Table),
	}
}

// serveCommand starts the HTTP API.
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the user-data HTTP API",
		Flags: []cli.Flag{
			backendFlag(),
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Listen port (overrides server.port and PORT)",
			},
		},
		Action: r.Serve,
	}
}

// userCommand handles account administration.
func userCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "user",
		Aliases: []string{"users"},
		Usage:   "Manage accounts",
		Flags:   []cli.Flag{backendFlag()},
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List every account",
				Flags:  []cli.Flag{formatFlag()},
				Action: r.UserList,
			},
			{
				Name:      "add",
				Usage:     "Register an account",
				Arguments: []cli.Argument{&cli.StringArg{Name: "username"}},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "password",
						Usage:    "Account password",
						Required: true,
					},
				},
				Action: r.UserAdd,
			},
			{
				Name:      "delete",
				Aliases:   []string{"rm"},
				Usage:     "Delete an account and all of its data",
				Arguments: []cli.Argument{&cli.StringArg{Name: "username"}},
				Action:    r.UserDelete,
			},
			{
				Name:      "passwd",
				Usage:     "Change an account's password",
				Arguments: []cli.Argument{&cli.StringArg{Name: "username"}},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "password",
						Usage:    "New password",
						Required: true,
					},
				},
				Action: r.UserPasswd,
			},
			{
				Name:      "records",
				Usage:     "Show an account's play records, most recent first",
				Arguments: []cli.Argument{&cli.StringArg{Name: "username"}},
				Flags:     []cli.Flag{formatFlag()},
				Action:    r.UserRecords,
			},
		},
	}
}

func engineFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:  "workers",
			Usage: "Users processed concurrently (max 16)",
			Value: 4,
		},
		&cli.FloatFlag{
			Name:  "rate",
			Usage: "Users started per second (0 for unlimited)",
		},
	}
}

// migrateCommand copies every user between two backends.
func migrateCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Copy all user data and the admin config from one backend to another",
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:     "from",
				Usage:    "Source backend (kvrocks, redis or sqlite)",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "to",
				Usage:    "Destination backend (kvrocks, redis or sqlite)",
				Required: true,
			},
		}, engineFlags()...),
		Action: r.Migrate,
	}
}

// exportCommand writes a JSON snapshot.
func exportCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Write a JSON snapshot of all user data",
		Flags: append([]cli.Flag{
			backendFlag(),
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output file path (default: stdout)",
			},
		}, engineFlags()...),
		Action: r.Export,
	}
}

// importCommand restores a JSON snapshot.
func importCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "import",
		Usage: "Restore a JSON snapshot into a backend",
		Flags: append([]cli.Flag{
			backendFlag(),
			&cli.StringFlag{
				Name:    "input",
				Aliases: []string{"i"},
				Usage:   "Snapshot file path (default: stdin)",
			},
		}, engineFlags()...),
		Action: r.Import,
	}
}

// setupCommand handles setup operations for the config file and the SQLite database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "config",
				Usage:  "Write a config file from the built-in template",
				Action: r.SetupConfig,
			},
			{
				Name:  "database",
				Usage: "Initialize the SQLite database and run migrations",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "path",
						Usage: "Database path (default: sqlite.path)",
					},
					&cli.BoolFlag{
						Name:  "rollback",
						Usage: "Roll back the most recent migration instead",
					},
					&cli.BoolFlag{
						Name:  "status",
						Usage: "Print the schema version and exit",
					},
				},
				Action: r.SetupDatabase,
			},
		},
	}
}

// tuiCommand returns the top-level TUI command for interactive account browsing.
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "tui",
		Aliases: []string{"interactive", "ui"},
		Usage:   "Launch the interactive account browser",
		Flags:   []cli.Flag{backendFlag()},
		Action:  r.TUI,
	}
}
