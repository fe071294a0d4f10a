package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"studybuddy/internal/config"
	"studybuddy/internal/store"
)

var (
	// Global flags
	verbose   bool
	workspace string

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "studybuddy",
	Short: "studybuddy - conversational study assistant",
	Long: `studybuddy is a conversational study assistant for the terminal.

Chat about any topic, attach images of worksheets or diagrams for
discussion, dictate questions by voice, and revise earlier turns with
edit and regenerate.

Run without arguments to start the interactive chat interface.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip logger init for interactive mode (it has its own UI)
		if cmd.Use == "studybuddy" && cmd.CalledAs() == "studybuddy" {
			return nil
		}

		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInteractiveChat()
	},
}

// versionCmd prints the application version
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the studybuddy version",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(resolveWorkspace())
		if err != nil {
			return err
		}
		fmt.Printf("%s %s\n", cfg.Name, cfg.Version)
		return nil
	},
}

// clearHistoryCmd wipes the durable conversation store
var clearHistoryCmd = &cobra.Command{
	Use:   "clear-history",
	Short: "Delete all persisted conversation history",
	RunE: func(cmd *cobra.Command, args []string) error {
		ws := resolveWorkspace()
		cfg, err := config.Load(ws)
		if err != nil {
			return err
		}
		if !cfg.Storage.Enabled {
			fmt.Println("Storage is disabled; nothing to clear.")
			return nil
		}

		s, err := store.NewSQLiteStore(filepath.Join(ws, cfg.Storage.DatabasePath))
		if err != nil {
			return fmt.Errorf("failed to open conversation store: %w", err)
		}
		defer s.Close()

		if err := s.Clear(); err != nil {
			return fmt.Errorf("failed to clear conversation history: %w", err)
		}
		logger.Info("conversation history cleared",
			zap.String("database", cfg.Storage.DatabasePath))
		fmt.Println("Conversation history cleared.")
		return nil
	},
}

func resolveWorkspace() string {
	if workspace != "" {
		return workspace
	}
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "workspace directory (default: current directory)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(clearHistoryCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
