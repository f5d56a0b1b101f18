package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ppiankov/pulsewatch/internal/config"
	pw "github.com/ppiankov/pulsewatch/sdk/go/pulsewatch"
)

var (
	runConfigPath  string
	runEndpoint    string
	runEnvironment string
	runVerbose     bool
)

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&runConfigPath, "config", "", "Path to YAML configuration file")
	runCmd.Flags().StringVar(&runEndpoint, "endpoint", "", "Base URL for the reporting backend")
	runCmd.Flags().StringVar(&runEnvironment, "environment", "", "Environment label attached to every batch")
	runCmd.Flags().BoolVar(&runVerbose, "verbose", false, "Log captured events to stderr")
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the telemetry agent",
	Long:  "Starts the capture pipeline and periodic loops (flush, memory poll, optimization sweep).\nConfig file changes are hot-applied by rebuilding the pipeline.\nRuns until SIGINT or SIGTERM.",
	RunE:  runAgent,
}

func runAgent(cmd *cobra.Command, args []string) error {
	log := zap.NewNop()
	if runVerbose {
		var err error
		if log, err = zap.NewDevelopment(); err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// A config file change restarts the pipeline with the new thresholds.
	// The session ID carries over so the backend sees one session.
	reloadCh := make(chan struct{}, 1)
	if runConfigPath != "" {
		reloader, err := config.NewReloader(runConfigPath, func(*config.Config) {
			select {
			case reloadCh <- struct{}{}:
			default:
			}
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: hot-reload disabled: %v\n", err)
		} else {
			go reloader.Run(ctx)
		}
	}

	sessionID := ""
	for {
		opts := []pw.Option{
			pw.WithConfigFile(runConfigPath),
			pw.WithLogger(log),
		}
		if runEndpoint != "" {
			opts = append(opts, pw.WithEndpoint(runEndpoint))
		}
		if runEnvironment != "" {
			opts = append(opts, pw.WithEnvironment(runEnvironment))
		}
		if sessionID != "" {
			opts = append(opts, pw.WithSessionID(sessionID))
		}

		client, err := pw.New(opts...)
		if err != nil {
			return err
		}
		sessionID = client.SessionID()
		fmt.Fprintf(os.Stderr, "pulsewatch agent running (session %s)\n", sessionID)

		runCtx, cancel := context.WithCancel(ctx)
		done := make(chan error, 1)
		go func() { done <- client.Run(runCtx) }()

		select {
		case <-reloadCh:
			fmt.Fprintln(os.Stderr, "configuration changed, restarting pipeline")
			cancel()
			<-done
			if err := client.Close(); err != nil {
				log.Warn("close after reload failed", zap.Error(err))
			}
			continue
		case <-ctx.Done():
			fmt.Fprintln(os.Stderr, "\nShutting down telemetry agent...")
			cancel()
			<-done
			return client.Close()
		case err := <-done:
			cancel()
			if cerr := client.Close(); cerr != nil && err == nil {
				err = cerr
			}
			return err
		}
	}
}
