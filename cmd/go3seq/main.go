package main

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/acorg/go3seq/internal/config"
	"github.com/acorg/go3seq/internal/models"
	"github.com/acorg/go3seq/internal/orchestrator"
	"github.com/acorg/go3seq/internal/profile"
	"github.com/acorg/go3seq/internal/recombinant"
	"github.com/acorg/go3seq/internal/seqsource"
	"github.com/acorg/go3seq/internal/storage"
	"github.com/acorg/go3seq/internal/tui"
)

var (
	verbose bool
	logger  = zap.NewNop()
)

func main() {
	rootCmd := newRootCommand()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "go3seq",
		Short: "Run and browse 3seq recombination analyses",
		Long: `go3seq runs the 3seq recombination detection tool on sequence alignments,
parses the recombinant triplets it reports and keeps a history of runs.

Run without arguments to browse previous runs.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// The browser owns the terminal
			if cmd == cmd.Root() {
				return nil
			}

			zapConfig := zap.NewProductionConfig()
			if verbose {
				zapConfig.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
			}
			l, err := zapConfig.Build()
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			logger = l
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = logger.Sync()
		},
		RunE: runTUI,
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug output to stderr")

	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newCheckCommand())
	rootCmd.AddCommand(newReadCommand())
	rootCmd.AddCommand(newGraphCommand())
	rootCmd.AddCommand(newStatusCommand())
	rootCmd.AddCommand(newListCommand())
	rootCmd.AddCommand(newDeleteCommand())
	rootCmd.AddCommand(newProfilesCommand())

	return rootCmd
}

// open loads the configuration and opens the run database.
func open() (*config.Config, *storage.Storage, error) {
	cfg, err := config.New()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.EnsureDataDir(); err != nil {
		return nil, nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	store, err := storage.New(cfg.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}

	return cfg, store, nil
}

func runTUI(cmd *cobra.Command, args []string) error {
	cfg, store, err := open()
	if err != nil {
		return err
	}
	defer store.Close()

	profiles, err := profile.LoadAll(cfg.ProfileDirs())
	if err != nil {
		return fmt.Errorf("failed to load profiles: %w", err)
	}

	orch := orchestrator.New(store, cfg.WorkDir)

	app := tui.NewApp(orch, profileNames(profiles))
	p := tea.NewProgram(app, tea.WithAltScreen())

	_, err = p.Run()
	return err
}

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <alignment>",
		Short: "Run 3seq on a FASTA or Phylip alignment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, store, err := open()
			if err != nil {
				return err
			}
			defer store.Close()

			req, err := buildRequest(cmd, cfg)
			if err != nil {
				return err
			}
			req.Source = seqsource.Path(args[0])

			orch := orchestrator.New(store, cfg.WorkDir, orchestrator.WithLogger(logger))

			if verbose {
				fmt.Fprintln(cmd.ErrOrStderr(), "Starting 3seq analysis...")
			}
			result, err := orch.Execute(req)
			if err != nil {
				if result != nil && result.Run != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "Run #%d failed", result.Run.ID)
					if result.Run.WorkspacePath != "" {
						fmt.Fprintf(cmd.ErrOrStderr(), ", output kept in %s", result.Run.WorkspacePath)
					}
					fmt.Fprintln(cmd.ErrOrStderr())
				}
				return err
			}
			if verbose {
				fmt.Fprintln(cmd.ErrOrStderr(), "Done.")
			}

			out := cmd.OutOrStdout()
			if result.Invocation.DryRun {
				fmt.Fprintf(out, "Would run: %s\n", result.Invocation.CommandLine())
				return nil
			}

			for _, line := range result.FilterLogs {
				fmt.Fprintf(cmd.ErrOrStderr(), "filter: %s\n", line)
			}
			if req.FilterPath != "" {
				fmt.Fprintf(out, "Filter kept %d of %d recombinants.\n", len(result.Recombinants), result.Found)
			}

			printReport(out, result.Recombinants)

			if result.RecombinantFile != "" {
				fmt.Fprintln(out, "Analysis recombinant file saved to", result.RecombinantFile)
			}
			fmt.Fprintf(out, "Stored as run #%d\n", result.Run.ID)
			return nil
		},
	}

	cmd.Flags().String("profile", "", "Analysis profile to use")
	cmd.Flags().String("ptable", "", "3seq p-value lookup table (default $GO3SEQ_PVALUE_TABLE)")
	cmd.Flags().StringP("t-value", "t", "", "The -t value to pass to 3seq, passed verbatim")
	cmd.Flags().String("binary", "", "3seq executable (default $GO3SEQ_BINARY or 3seq)")
	cmd.Flags().String("id", "", "Prefix 3seq uses for its output files")
	cmd.Flags().String("filter", "", "Lua script deciding which recombinants to keep")
	cmd.Flags().Bool("keep-output", false, "Do not remove the 3seq output directory")
	cmd.Flags().Bool("dry-run", false, "Print the 3seq command instead of running it")
	return cmd
}

// buildRequest combines flags, the selected profile and the environment.
// Flags win over the profile, which wins over the environment.
func buildRequest(cmd *cobra.Command, cfg *config.Config) (*orchestrator.Request, error) {
	req := &orchestrator.Request{
		PValueTable: cfg.PValueTable,
		Binary:      cfg.Binary,
	}

	if name, _ := cmd.Flags().GetString("profile"); name != "" {
		p, err := loadProfile(cfg, name)
		if err != nil {
			return nil, err
		}
		req.PValueTable = p.PValueTable
		req.Threshold = p.Threshold
		req.OutputPrefix = p.OutputPrefix
		req.FilterPath = p.Filter
		if p.Binary != "" {
			req.Binary = p.Binary
		}
	}

	flags := cmd.Flags()
	if v, _ := flags.GetString("ptable"); v != "" {
		req.PValueTable = v
	}
	if flags.Changed("t-value") {
		req.Threshold, _ = flags.GetString("t-value")
	}
	if v, _ := flags.GetString("binary"); v != "" {
		req.Binary = v
	}
	if v, _ := flags.GetString("id"); v != "" {
		req.OutputPrefix = v
	}
	if v, _ := flags.GetString("filter"); v != "" {
		req.FilterPath = v
	}
	req.KeepOutput, _ = flags.GetBool("keep-output")
	req.DryRun, _ = flags.GetBool("dry-run")

	if req.PValueTable == "" {
		return nil, errors.New("no p-value table: use --ptable, a profile or GO3SEQ_PVALUE_TABLE")
	}
	return req, nil
}

func loadProfile(cfg *config.Config, name string) (*models.Profile, error) {
	profiles, err := profile.LoadAll(cfg.ProfileDirs())
	if err != nil {
		return nil, fmt.Errorf("failed to load profiles: %w", err)
	}

	p, ok := profiles[name]
	if !ok {
		return nil, fmt.Errorf("profile %q not found", name)
	}
	if err := profile.Validate(p); err != nil {
		return nil, err
	}
	return p, nil
}

func newCheckCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check that 3seq can use a p-value table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, store, err := open()
			if err != nil {
				return err
			}
			defer store.Close()

			req, err := buildRequest(cmd, cfg)
			if err != nil {
				return err
			}

			orch := orchestrator.New(store, cfg.WorkDir, orchestrator.WithLogger(logger))
			inv, err := orch.Check(req.PValueTable, req.Binary)
			if inv != nil {
				fmt.Fprint(cmd.OutOrStdout(), inv.Stdout)
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s is usable\n", req.PValueTable)
			return nil
		},
	}

	cmd.Flags().String("profile", "", "Analysis profile to take the table from")
	cmd.Flags().String("ptable", "", "3seq p-value lookup table (default $GO3SEQ_PVALUE_TABLE)")
	cmd.Flags().String("binary", "", "3seq executable (default $GO3SEQ_BINARY or 3seq)")
	return cmd
}

func newReadCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "read <file.3s.rec>",
		Short: "Print the recombinants in a 3seq output file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			recs, err := recombinant.Collect(recombinant.Read(args[0]))
			if err != nil {
				return err
			}

			if filterPath, _ := cmd.Flags().GetString("filter"); filterPath != "" {
				var logs []string
				recs, logs, err = orchestrator.ApplyFilter(filterPath, recs)
				for _, line := range logs {
					fmt.Fprintf(cmd.ErrOrStderr(), "filter: %s\n", line)
				}
				if err != nil {
					return err
				}
			}

			if tsv, _ := cmd.Flags().GetBool("tsv"); tsv {
				return recombinant.Write(cmd.OutOrStdout(), recs)
			}

			printReport(cmd.OutOrStdout(), recs)
			return nil
		},
	}

	cmd.Flags().String("filter", "", "Lua script deciding which recombinants to keep")
	cmd.Flags().Bool("tsv", false, "Write the recombinants back out as a 3seq table")
	return cmd
}

func newGraphCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph [file.3s.rec]",
		Short: "Write the recombination network as a Graphviz digraph",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, _ := cmd.Flags().GetInt64("run")

			var recs []*models.Recombinant
			title := ""
			switch {
			case runID != 0:
				_, store, err := open()
				if err != nil {
					return err
				}
				defer store.Close()

				run, err := store.GetRun(runID)
				if err != nil {
					return fmt.Errorf("failed to get run: %w", err)
				}
				recs, err = store.GetRecombinantsForRun(runID)
				if err != nil {
					return err
				}
				title = graphTitle(len(recs), run.Threshold)

			case len(args) == 1:
				var err error
				recs, err = recombinant.Collect(recombinant.Read(args[0]))
				if err != nil {
					return err
				}
				title = graphTitle(len(recs), "")

			default:
				return errors.New("give a recombinant file or --run")
			}

			return recombinant.WriteDOT(cmd.OutOrStdout(), recs, title)
		},
	}

	cmd.Flags().Int64("run", 0, "Graph the recombinants stored for this run")
	return cmd
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status <run-id>",
		Short: "Show run status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid run ID: %w", err)
			}

			_, store, err := open()
			if err != nil {
				return err
			}
			defer store.Close()

			run, err := store.GetRun(runID)
			if err != nil {
				return fmt.Errorf("failed to get run: %w", err)
			}

			invs, err := store.GetInvocationsForRun(runID)
			if err != nil {
				return err
			}

			printStatus(cmd.OutOrStdout(), run, invs)
			return nil
		},
	}
}

func newListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, store, err := open()
			if err != nil {
				return err
			}
			defer store.Close()

			limit, _ := cmd.Flags().GetInt("limit")
			runs, err := store.ListRuns(limit)
			if err != nil {
				return err
			}

			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No runs found.")
				return nil
			}

			for _, run := range runs {
				fmt.Fprintf(cmd.OutOrStdout(), "#%d [%s] %s, %s: %s\n",
					run.ID, run.Status, humanize.Time(run.CreatedAt),
					pluralRecombinants(run.RecombinantCount), truncate(run.InputPath, 50))
			}

			return nil
		},
	}

	cmd.Flags().Int("limit", 20, "Maximum number of runs to show")
	return cmd
}

func newDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <run-id>",
		Short: "Delete a run and its working directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid run ID: %w", err)
			}

			cfg, store, err := open()
			if err != nil {
				return err
			}
			defer store.Close()

			orch := orchestrator.New(store, cfg.WorkDir, orchestrator.WithLogger(logger))

			if err := orch.DeleteRun(runID); err != nil {
				return fmt.Errorf("failed to delete run: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Deleted run #%d\n", runID)
			return nil
		},
	}
}

func newProfilesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "List analysis profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.New()
			if err != nil {
				return err
			}

			profiles, err := profile.LoadAll(cfg.ProfileDirs())
			if err != nil {
				return err
			}

			if len(profiles) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No profiles found in %s or %s.\n",
					cfg.ProjectProfileDir, cfg.UserProfileDir)
				return nil
			}

			for _, name := range profileNames(profiles) {
				printProfile(cmd.OutOrStdout(), profiles[name])
			}
			return nil
		},
	}
}

func profileNames(profiles map[string]*models.Profile) []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
