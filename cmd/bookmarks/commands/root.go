// Package commands holds the cobra command tree for the bookmarks CLI.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sakif/smart-bookmarks/internal/backend"
	"github.com/sakif/smart-bookmarks/internal/client"
	"github.com/sakif/smart-bookmarks/internal/config"
	"github.com/sakif/smart-bookmarks/internal/logging"
	"github.com/sakif/smart-bookmarks/internal/tui"
)

var serverURL string

// NewRootCommand creates the root command
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "bookmarks",
		Short:         "Keep a private list of bookmarks, signed in with Google",
		Long:          `bookmarks is a terminal client for the Smart Bookmarks service. Run it without arguments for the interactive screen.`,
		RunE:          runTUI,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "Backend Service URL (overrides BOOKMARKS_SERVER_URL)")
	rootCmd.AddCommand(NewLoginCommand())
	rootCmd.AddCommand(NewLogoutCommand())
	rootCmd.AddCommand(NewListCommand())
	rootCmd.AddCommand(NewAddCommand())
	rootCmd.AddCommand(NewRemoveCommand())

	return rootCmd
}

// Execute runs the root command
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	rootCmd := NewRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func runTUI(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	return tui.Run(cmd.Context(), a.client)
}

// app is everything a command needs to talk to the Backend Service.
type app struct {
	client  *client.Client
	auth    *backend.Auth
	logger  *slog.Logger
	logFile *os.File
}

func newApp() (*app, error) {
	cfg, err := config.LoadCLI()
	if err != nil {
		return nil, err
	}
	if serverURL != "" {
		cfg.ServerURL = serverURL
	}

	// The screen owns the terminal, so logs go to a file.
	if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o700); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	logFile, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	logger := logging.New(logFile, cfg.LogLevel)

	api, err := backend.NewAPI(cfg.ServerURL, nil)
	if err != nil {
		logFile.Close()
		return nil, err
	}
	auth, err := backend.NewAuth(api, backend.NewSessionFile(cfg.SessionFile), logger)
	if err != nil {
		logFile.Close()
		return nil, err
	}

	return &app{
		client:  client.New(auth, backend.NewStore(api, auth), logger),
		auth:    auth,
		logger:  logger,
		logFile: logFile,
	}, nil
}

func (a *app) close() {
	a.client.Close()
	a.auth.Close()
	a.logFile.Close()
}

// signedIn bootstraps the client and fails unless a session exists.
func (a *app) signedIn(ctx context.Context) (client.State, error) {
	if err := a.client.Bootstrap(ctx); err != nil {
		return client.State{}, err
	}
	st := a.client.Snapshot()
	if st.Mode() != client.Authenticated {
		return st, fmt.Errorf("not logged in; run `bookmarks login` first")
	}
	return st, nil
}
