// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

// newApp builds the root command. Global flags are read by [Runner.Before].
//
// "-v" is left to the built-in --version flag.
func newApp(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "tandem",
		Usage:   "Mirror one Spotify account's playback onto a group of listeners",
		Version: "0.1.0",
		Writer:  r.output,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
				Sources: cli.EnvVars("TANDEM_CONFIG"),
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Log at debug level",
			},
		},
		Before:   r.Before,
		Commands: r.register(),
	}
}

// setupCommand writes the config file and prepares the configured store.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Create config.toml and run database migrations",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "client-id",
				Usage: "Spotify application client id to write to the config",
			},
			&cli.StringFlag{
				Name:  "client-secret",
				Usage: "Spotify application client secret to write to the config",
			},
			&cli.StringFlag{
				Name:  "driver",
				Usage: "Store driver to write to the config (file, redis or sqlite)",
			},
			&cli.BoolFlag{
				Name:  "rollback",
				Usage: "Roll back the most recent database migration (sqlite driver only)",
			},
		},
		Action: r.Setup,
	}
}

// workerCommand runs the sync loop.
func workerCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "worker",
		Aliases: []string{"sync"},
		Usage:   "Mirror the leader's playback onto every follower until interrupted",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "tui",
				Usage: "Show the live monitor while syncing (logs go to --log-file)",
			},
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "Log file used with --tui",
				Value: "./tmp/tandem-worker.log",
			},
		},
		Action: r.Worker,
	}
}

// serveCommand runs the sign-in web server.
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "Run the web server followers and the leader sign in with",
		Action: r.Serve,
	}
}

// registerCommand opens the leader registration page of a running server.
func registerCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "register",
		Usage: "Open the browser to register the leader account",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "url",
				Usage: "Base URL of the web server (default: http://<server.host>:<server.port>)",
			},
		},
		Action: r.Register,
	}
}

// credentialsCommand manages stored refresh tokens.
func credentialsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "credentials",
		Aliases: []string{"creds"},
		Usage:   "Manage stored credentials",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List stored credential ids",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.CredentialsList,
			},
			{
				Name:  "delete",
				Usage: "Delete the credential of a follower",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "id",
					},
				},
				Action: r.CredentialsDelete,
			},
			{
				Name:   "reset-main",
				Usage:  "Delete the leader credential",
				Action: r.CredentialsResetMain,
			},
			{
				Name:   "watch",
				Usage:  "Print credential additions and removals (file store only)",
				Action: r.CredentialsWatch,
			},
		},
	}
}

// statusCommand shows the published snapshot and the followers.
func statusCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show what the leader is playing and who is following",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "once",
				Usage: "Print the status once instead of starting the monitor",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON (implies --once)",
			},
		},
		Action: r.Status,
	}
}
