package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"redtrack/internal/app"
	"redtrack/internal/config"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates an App. The caller must defer a.Close().
// operation identifies the CLI command being run (e.g. "Poll", "Merge").
func newApp(operation string) (*app.App, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.NewApp(cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

var rootCmd = &cobra.Command{
	Use:   "redtrack",
	Short: "Reddit account history tracker",
}

// config command

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])
		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Base Dir:      %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:       %s\n", cfg.LogDir)
		fmt.Printf("Database:      %s (%s)\n", cfg.Database.Type, cfg.Database.DataDir)
		fmt.Printf("Media:         %s\n", cfg.Media.Type)
		fmt.Printf("Poll interval: %dm\n", cfg.Poll.IntervalMinutes)
		return nil
	},
}

// poll command

var pollCmd = &cobra.Command{
	Use:   "poll <username>",
	Short: "Run one monitoring cycle for a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Poll")
		if err != nil {
			return err
		}
		defer a.Close()

		cs, err := a.Poll(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("polling u/%s: %w", args[0], err)
		}

		fmt.Printf("Polled u/%s: snapshot=%v new_items=%d score_changes=%d\n",
			args[0], cs.Snapshot != nil, len(cs.NewItems), len(cs.Scores))
		return nil
	},
}

// track command

var trackCmd = &cobra.Command{
	Use:   "track <username>",
	Short: "Poll a user on a schedule until interrupted",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Track")
		if err != nil {
			return err
		}
		defer a.Close()

		interval, err := cmd.Flags().GetInt("interval")
		if err != nil {
			return err
		}
		if interval == 0 {
			interval = pollIntervalFromConfig(a)
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		sched := app.NewScheduler(a.Service(), a.Logger())
		if err := sched.Start(ctx, args[0], interval); err != nil {
			return err
		}

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig

		sched.Stop()
		return nil
	},
}

// stats command

var statsCmd = &cobra.Command{
	Use:   "stats <username>",
	Short: "Show tracked statistics for a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Stats")
		if err != nil {
			return err
		}
		defer a.Close()

		stats, err := a.Stats(args[0])
		if err != nil {
			return fmt.Errorf("reading stats: %w", err)
		}
		if stats == nil {
			fmt.Printf("No history for u/%s\n", args[0])
			return nil
		}

		fmt.Printf("=== Stats for u/%s ===\n", stats.Account)
		fmt.Printf("Last checked:   %s\n", stats.LastChecked.Format("2006-01-02 15:04:05"))
		fmt.Printf("Post karma:     %d\n", stats.PostKarma)
		fmt.Printf("Comment karma:  %d\n", stats.CommentKarma)
		fmt.Printf("Total karma:    %d\n", stats.TotalKarma)
		if stats.KarmaDelta24h != nil {
			fmt.Printf("24h change:     %+d\n", *stats.KarmaDelta24h)
		}
		fmt.Printf("Posts tracked:  %d\n", stats.Posts)
		fmt.Printf("Comments:       %d\n", stats.Comments)
		fmt.Printf("Images:         %d\n", stats.Images)
		fmt.Printf("Snapshots:      %d\n", stats.Snapshots)
		return nil
	},
}

// merge command

var mergeCmd = &cobra.Command{
	Use:   "merge <source.db> <target.db>",
	Short: "Merge one history store into another",
	Long: `Merge consolidates two independently collected history stores for the
same account. Without --output the source is merged into the target in
place; with --output both inputs are left unmodified and the merged store
is written to a new file.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Merge")
		if err != nil {
			return err
		}
		defer a.Close()

		output, err := cmd.Flags().GetString("output")
		if err != nil {
			return err
		}

		if err := a.MergeStores(args[0], args[1], output); err != nil {
			return fmt.Errorf("merging stores: %w", err)
		}

		dest := args[1]
		if output != "" {
			dest = output
		}
		fmt.Printf("Merged %s into %s\n", args[0], dest)
		return nil
	},
}

// history command

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent poll and merge runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("History")
		if err != nil {
			return err
		}
		defer a.Close()

		limit, err := cmd.Flags().GetInt("limit")
		if err != nil {
			return err
		}

		runs, err := a.History(limit)
		if err != nil {
			return fmt.Errorf("reading history: %w", err)
		}

		for _, run := range runs {
			finished := "running"
			if run.FinishedAt != nil {
				finished = run.FinishedAt.Format("2006-01-02 15:04:05")
			}
			fmt.Printf("%4d  %-6s %-12s %s  %s  %s\n",
				run.ID, run.Operation, run.Account,
				run.StartedAt.Format("2006-01-02 15:04:05"), finished, run.Status)
		}
		return nil
	},
}

// serve command

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the dashboard API",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Serve")
		if err != nil {
			return err
		}
		defer a.Close()

		addr, err := cmd.Flags().GetString("addr")
		if err != nil {
			return err
		}
		return a.Serve(addr)
	},
}

func pollIntervalFromConfig(a *app.App) int {
	if n := a.Config().Poll.IntervalMinutes; n > 0 {
		return n
	}
	return 30
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	trackCmd.Flags().IntP("interval", "i", 0, "poll interval in minutes (default from config)")
	mergeCmd.Flags().StringP("output", "o", "", "write merged store to a new file instead of modifying target")
	historyCmd.Flags().Int("limit", 20, "number of runs to show")
	serveCmd.Flags().String("addr", "", "listen address (default from config)")

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(pollCmd)
	rootCmd.AddCommand(trackCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(mergeCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(serveCmd)
}
