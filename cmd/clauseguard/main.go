package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"clauseguard/internal/config"
	"clauseguard/internal/merge"
	"clauseguard/internal/store"
	"clauseguard/internal/synthesis"
	"clauseguard/internal/types"
	"clauseguard/internal/watch"
	"clauseguard/internal/workflow"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global flags
	verbose    bool
	configPath string

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "clauseguard",
	Short: "clauseguard - multi-model legal document risk review",
	Long: `clauseguard reviews contracts and legal documents for risk.

It fans each document out to several independent model roles (risk,
commercial, compliance), parses their semi-structured verdicts, merges
near-duplicate findings across roles, and synthesizes one consolidated,
ranked risk report. Sessions are checkpointed and can pause after document
preorganization for human confirmation, then resume later.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
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
}

var (
	analyzeRules     string
	analyzeStance    string
	analyzeMode      string
	analyzeSession   string
	analyzeStopAfter bool
)

// analyzeCmd runs a full review session over one or more document files.
var analyzeCmd = &cobra.Command{
	Use:   "analyze [files...]",
	Short: "Analyze documents and produce a risk report",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		docs, err := readDocuments(args)
		if err != nil {
			return err
		}
		rules, err := resolveRules(cfg)
		if err != nil {
			return err
		}

		machine, cs, err := buildMachine(cfg)
		if err != nil {
			return err
		}
		defer cs.Close()

		stance := analyzeStance
		if stance == "" {
			stance = cfg.Stance
		}
		st, err := machine.Start(ctx, docs, rules, workflow.StartOptions{
			SessionID:                analyzeSession,
			Stance:                   stance,
			Mode:                     analyzeMode,
			StopAfterPreorganization: analyzeStopAfter,
		})
		if err != nil {
			return err
		}
		return printOutcome(st)
	},
}

var (
	resumeStance string
	resumeMode   string
)

// resumeCmd continues a paused or failed session from its checkpoint.
var resumeCmd = &cobra.Command{
	Use:   "resume <session-id>",
	Short: "Resume a paused or failed session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		machine, cs, err := buildMachine(cfg)
		if err != nil {
			return err
		}
		defer cs.Close()

		st, err := machine.Resume(ctx, args[0], workflow.ResumeOverrides{
			Stance: resumeStance,
			Mode:   resumeMode,
		})
		if err != nil {
			return err
		}
		return printOutcome(st)
	},
}

// sessionsCmd manages checkpointed sessions. Bare "sessions" lists.
var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List and manage checkpointed sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		return listSessions()
	},
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List checkpointed sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		return listSessions()
	},
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show the state of one session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cs, err := openStore()
		if err != nil {
			return err
		}
		defer cs.Close()

		data, err := cs.Load(args[0])
		if err != nil {
			return err
		}
		st, err := workflow.UnmarshalState(data)
		if err != nil {
			return err
		}
		fmt.Printf("Session:  %s\n", st.SessionID)
		fmt.Printf("Step:     %s\n", st.CurrentStep)
		fmt.Printf("Status:   %s\n", st.Status)
		if st.Error != "" {
			fmt.Printf("Error:    %s\n", st.Error)
		}
		if st.Stance != "" {
			fmt.Printf("Stance:   %s\n", st.Stance)
		}
		fmt.Printf("Updated:  %s\n", st.UpdatedAt.Format("2006-01-02 15:04:05"))
		for _, d := range st.Digests {
			fmt.Printf("Document: %s (%d chars)\n", d.Filename, d.CharCount)
		}
		return nil
	},
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <session-id>",
	Short: "Delete a session checkpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cs, err := openStore()
		if err != nil {
			return err
		}
		defer cs.Close()

		if err := cs.Delete(args[0]); err != nil {
			return err
		}
		fmt.Printf("Deleted session %s\n", args[0])
		return nil
	},
}

func openStore() (store.CheckpointStore, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return store.NewSQLiteStore(cfg.CheckpointPath)
}

func listSessions() error {
	cs, err := openStore()
	if err != nil {
		return err
	}
	defer cs.Close()

	infos, err := cs.List()
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Println("No sessions.")
		return nil
	}
	for _, info := range infos {
		fmt.Printf("%s  %s  %d bytes\n",
			info.SessionID, info.UpdatedAt.Format("2006-01-02 15:04:05"), info.Size)
	}
	return nil
}

var watchDir string

// watchCmd analyzes every document dropped into a directory.
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch a drop directory and analyze incoming documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		dir := watchDir
		if dir == "" {
			dir = cfg.WatchDir
		}
		if dir == "" {
			return fmt.Errorf("no watch directory; pass --dir or set watch_dir in config")
		}
		rules, err := resolveRules(cfg)
		if err != nil {
			return err
		}
		machine, cs, err := buildMachine(cfg)
		if err != nil {
			return err
		}
		defer cs.Close()

		pending := make(chan types.Document, 16)
		dw, err := watch.New(dir, func(doc types.Document) {
			select {
			case pending <- doc:
			default:
				logger.Warn("dropping document, queue full", zap.String("file", doc.Metadata.Filename))
			}
		})
		if err != nil {
			return err
		}
		if err := dw.Start(ctx); err != nil {
			return err
		}
		defer dw.Stop()

		fmt.Printf("Watching %s (ctrl-c to stop)\n", dir)
		for {
			select {
			case <-ctx.Done():
				return nil
			case doc := <-pending:
				st, err := machine.Start(ctx, []types.Document{doc}, rules, workflow.StartOptions{
					Stance: cfg.Stance,
				})
				if err != nil {
					logger.Error("analysis failed",
						zap.String("file", doc.Metadata.Filename), zap.Error(err))
					continue
				}
				if err := printOutcome(st); err != nil {
					return err
				}
			}
		}
	},
}

// buildMachine assembles the workflow machine from config: model roles,
// referee, merger settings, chunking and the sqlite checkpoint store.
func buildMachine(cfg *config.Config) (*workflow.Machine, store.CheckpointStore, error) {
	roles, err := cfg.BuildRoles()
	if err != nil {
		return nil, nil, err
	}
	cs, err := store.NewSQLiteStore(cfg.CheckpointPath)
	if err != nil {
		return nil, nil, err
	}
	maxSize, overlap := cfg.ChunkingOptions()
	machine := workflow.New(cs, roles).
		WithSynthesis(synthesis.New(cfg.BuildReferee())).
		WithMerger(merge.New(cfg.MergeOptions())).
		WithChunking(maxSize, overlap).
		WithReporter(func(step string, status workflow.StepStatus, message string, progress float64) {
			if message != "" {
				fmt.Printf("[%3.0f%%] %s: %s (%s)\n", progress*100, step, status, message)
				return
			}
			fmt.Printf("[%3.0f%%] %s: %s\n", progress*100, step, status)
		})
	return machine, cs, nil
}

func readDocuments(paths []string) ([]types.Document, error) {
	docs := make([]types.Document, 0, len(paths))
	for _, p := range paths {
		content, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read document %s: %w", p, err)
		}
		docs = append(docs, types.Document{
			Content: string(content),
			Metadata: types.DocumentMetadata{
				Filename: filepath.Base(p),
				FilePath: p,
			},
		})
	}
	return docs, nil
}

func resolveRules(cfg *config.Config) ([]types.Rule, error) {
	path := analyzeRules
	if path == "" {
		path = cfg.RulesPath
	}
	if path == "" {
		return nil, fmt.Errorf("no rules file; pass --rules or set rules_path in config")
	}
	return config.LoadRules(path)
}

func printOutcome(st *workflow.WorkflowState) error {
	switch st.Status {
	case workflow.StatusPaused:
		fmt.Printf("\nSession %s paused after preorganization.\n", st.SessionID)
		for _, d := range st.Digests {
			fmt.Printf("  - %s: %d chars, %d section(s)\n", d.Filename, d.CharCount, d.ChunkCount)
		}
		fmt.Printf("Resume with: clauseguard resume %s\n", st.SessionID)
		return nil
	case workflow.StatusCompleted:
		fmt.Println()
		fmt.Println(st.Report)
		return nil
	default:
		return fmt.Errorf("session %s ended with status %s: %s", st.SessionID, st.Status, st.Error)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", ".clauseguard/config.yaml", "Path to config file")

	analyzeCmd.Flags().StringVar(&analyzeRules, "rules", "", "Path to YAML rules file")
	analyzeCmd.Flags().StringVar(&analyzeStance, "stance", "", "Review stance: ourside or counterparty")
	analyzeCmd.Flags().StringVar(&analyzeMode, "mode", "", "Review mode: \"single\" skips the merge and referee pass; other values are passed to the models")
	analyzeCmd.Flags().StringVar(&analyzeSession, "session", "", "Session ID (generated when empty)")
	analyzeCmd.Flags().BoolVar(&analyzeStopAfter, "stop-after-preorganization", false,
		"Pause after document preorganization for confirmation")

	resumeCmd.Flags().StringVar(&resumeStance, "stance", "", "Override review stance")
	resumeCmd.Flags().StringVar(&resumeMode, "mode", "", "Override review mode")

	watchCmd.Flags().StringVar(&watchDir, "dir", "", "Drop directory to watch")
	watchCmd.Flags().StringVar(&analyzeRules, "rules", "", "Path to YAML rules file")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(resumeCmd)
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
	sessionsCmd.AddCommand(sessionsDeleteCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(watchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
