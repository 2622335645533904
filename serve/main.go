// Command fimletd is the fimlet daemon.
// It listens on a Unix domain socket for completion requests from editor
// plugins, cuts a context window around the cursor and returns a
// fill-in-middle completion from an OpenAI-compatible provider.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	fimlet "github.com/michaai/fimlet"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	app := &cli.Command{
		Name:    "fimletd",
		Usage:   "Fill-in-middle code completion daemon",
		Version: Version,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Log every request and response to stderr",
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			setupLogging(cmd.Bool("verbose"))
			return ctx, nil
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return serve(ctx, resolveSocketPath(""))
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "Listen for completion requests on a Unix socket",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "socket",
						Usage:   "Socket path",
						Sources: cli.EnvVars("FIMLET_SOCKET"),
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return serve(ctx, resolveSocketPath(cmd.String("socket")))
				},
			},
			{
				Name:      "complete",
				Usage:     "Complete a file once and print the candidate",
				ArgsUsage: "[file]",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "file",
						Usage: "File to complete (reads stdin when empty)",
					},
					&cli.StringFlag{
						Name:  "name",
						Usage: "File name used for the trigger policy when reading stdin",
					},
					&cli.IntFlag{
						Name:  "offset",
						Value: -1,
						Usage: "Cursor byte offset (defaults to end of buffer)",
					},
					&cli.BoolFlag{
						Name:  "auto",
						Usage: "Mark the request as an automatic popup",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					file := cmd.String("file")
					if file == "" && cmd.Args().Len() > 0 {
						file = cmd.Args().Get(0)
					}
					return runComplete(ctx, os.Stdin, os.Stdout, completeParams{
						File:   file,
						Name:   cmd.String("name"),
						Offset: cmd.Int("offset"),
						Auto:   cmd.Bool("auto"),
					})
				},
			},
			{
				Name:  "config",
				Usage: "Print the effective configuration as TOML",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "defaults",
						Usage: "Print the built-in defaults instead",
					},
				},
				Action: func(_ context.Context, cmd *cli.Command) error {
					return printConfig(os.Stdout, cmd.Bool("defaults"))
				},
			},
			{
				Name:      "validate",
				Usage:     "Validate a fimlet configuration file",
				ArgsUsage: "[config-file]",
				Action: func(_ context.Context, cmd *cli.Command) error {
					path := ""
					if cmd.Args().Len() > 0 {
						path = cmd.Args().Get(0)
					}
					return runValidate(os.Stdout, path)
				},
			},
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func setupLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func serve(ctx context.Context, socketPath string) error {
	slog.Info("starting", "socket", socketPath, "config", fimlet.ConfigPath())

	srv, err := NewServer(socketPath)
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	defer srv.Close()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		slog.Info("shutting down")
		srv.Close()
	}()

	slog.Info("ready")
	if err := srv.Serve(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// resolveSocketPath returns flag, or the per-user default socket path.
func resolveSocketPath(flag string) string {
	if flag != "" {
		return flag
	}
	if path := os.Getenv("FIMLET_SOCKET"); path != "" {
		return path
	}
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return dir + "/fimlet.sock"
	}
	return fmt.Sprintf("/tmp/fimlet-%d.sock", os.Getuid())
}
