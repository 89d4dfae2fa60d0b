// Package main implements the gateview terminal app: the reviewer-side front
// end for a checkpointed task pipeline.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fernlabs/gateview/internal/approval"
	"github.com/fernlabs/gateview/internal/backend"
	"github.com/fernlabs/gateview/internal/config"
	"github.com/fernlabs/gateview/internal/logging"
	"github.com/fernlabs/gateview/internal/pipeline"
	"github.com/fernlabs/gateview/internal/review"
	"github.com/fernlabs/gateview/internal/ui"
)

var (
	// configPath overrides the default config file location.
	configPath string
	// backendURL overrides the configured backend base URL.
	backendURL string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "gateview",
	Short: "Review console for pipeline checkpoints",
	Long: `gateview is the reviewer-side console for an automated task pipeline.
When the pipeline pauses at a checkpoint, gateview shows the paused state
(artifacts, decisions, warnings), collects feedback, and submits the
reviewer's approval so the pipeline can resume.

The pipeline runner posts checkpoint and resume events to gateview's
loopback listener; feedback and approvals go back over the backend API.`,
	Version: version,
	RunE:    runApp,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/gateview/config.yaml)")
	rootCmd.Flags().StringVar(&backendURL, "backend", "", "backend base URL (overrides config)")
	rootCmd.AddCommand(checkCmd)
}

// checkCmd verifies the backend is reachable without starting the TUI.
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check that the pipeline backend is reachable",
	RunE:  runCheck,
}

func loadConfig() (*config.Config, error) {
	if err := config.EnsureConfigDir(); err != nil {
		return nil, err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if backendURL != "" {
		cfg.Backend.URL = backendURL
	}
	return cfg, nil
}

// runApp wires the store, listener, submitter, and TUI together.
func runApp(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := logging.New(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logging.Sync(logger) //nolint:errcheck

	logger.Info("starting gateview",
		zap.String("version", version),
		zap.String("backend", cfg.Backend.URL),
	)

	store := approval.NewStore(logger.Named("approval"))

	client, err := backend.NewClient(cfg.Backend.URL, cfg.Backend.Timeout.Duration(), logger.Named("backend"))
	if err != nil {
		return fmt.Errorf("failed to create backend client: %w", err)
	}

	submitter, err := review.NewSubmitter(store, client, logger.Named("review"))
	if err != nil {
		return fmt.Errorf("failed to create submitter: %w", err)
	}

	listener, err := pipeline.NewListener(store, logger.Named("pipeline"), &pipeline.Config{
		Host: cfg.Listen.Host,
		Port: cfg.Listen.Port,
	})
	if err != nil {
		return fmt.Errorf("failed to create event listener: %w", err)
	}

	listenErr := make(chan error, 1)
	go func() {
		if err := listener.Start(); err != nil && err != http.ErrServerClosed {
			listenErr <- err
		}
	}()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := listener.Shutdown(ctx); err != nil {
			logger.Warn("listener shutdown failed", zap.Error(err))
		}
	}()

	model := ui.NewModel(store, submitter, client, cfg.UI.UsagePollInterval.Duration(), logger.Named("ui"))
	program := tea.NewProgram(model, tea.WithAltScreen())

	done := make(chan error, 1)
	go func() {
		_, err := program.Run()
		done <- err
	}()

	select {
	case err := <-listenErr:
		program.Quit()
		<-done
		return fmt.Errorf("event listener failed: %w", err)
	case err := <-done:
		if err != nil {
			return fmt.Errorf("ui error: %w", err)
		}
		return nil
	}
}

// runCheck pings the backend usage endpoint and reports reachability.
func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	client, err := backend.NewClient(cfg.Backend.URL, cfg.Backend.Timeout.Duration(), zap.NewNop())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	snap, err := client.Usage(ctx)
	if err != nil {
		return fmt.Errorf("backend not reachable at %s: %w", cfg.Backend.URL, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "backend ok: %s (usage %.0f%%)\n", cfg.Backend.URL, snap.Percent)
	return nil
}
