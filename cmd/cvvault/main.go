package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/pbaille/cvvault/internal/config"
	"github.com/pbaille/cvvault/internal/domain"
	"github.com/pbaille/cvvault/internal/enrich"
	"github.com/pbaille/cvvault/internal/logger"
	"github.com/pbaille/cvvault/internal/metrics"
	"github.com/pbaille/cvvault/internal/portfolio"
	"github.com/pbaille/cvvault/internal/store"
	"github.com/spf13/cobra"
)

var (
	configPath string
	dbPath     string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "cvvault",
		Short:         "Academic portfolio tracker with AI reflections",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: ./config.yaml or ~/.config/cvvault/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database path (overrides config)")

	rootCmd.AddCommand(addCmd())
	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(showCmd())
	rootCmd.AddCommand(deleteCmd())
	rootCmd.AddCommand(reflectCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(tipsCmd())
	rootCmd.AddCommand(serveCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// app wires the core components for one command invocation
type app struct {
	cfg   *config.Config
	log   *slog.Logger
	store *store.SQLite
	repo  *portfolio.Repository
	coord *enrich.Coordinator
}

func openApp(ctx context.Context, m metrics.Recorder) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.DB = dbPath
	}

	log := logger.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(log)

	if m == nil {
		m = metrics.Nop{}
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(cfg.DB), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	s, err := store.New(cfg.DB)
	if err != nil {
		return nil, err
	}

	repo := portfolio.New(s, portfolio.WithLogger(log), portfolio.WithMetrics(m))
	repo.Load(ctx)

	client, err := enrich.NewClient(enrich.Settings{
		Provider:      cfg.Enrich.Provider,
		APIKey:        cfg.Enrich.APIKey,
		Model:         cfg.Enrich.Model,
		BaseURL:       cfg.Enrich.BaseURL,
		RatePerMinute: cfg.Enrich.RatePerMinute,
		FetchLinks:    cfg.Enrich.FetchLinks,
	}, log, m)
	if err != nil {
		s.Close()
		return nil, err
	}

	coord := enrich.NewCoordinator(repo, client,
		enrich.WithTimeout(cfg.Enrich.Timeout),
		enrich.WithCoordinatorLogger(log),
		enrich.WithCoordinatorMetrics(m),
	)

	return &app{cfg: cfg, log: log, store: s, repo: repo, coord: coord}, nil
}

// Close waits for pending enrichments before closing the database
func (a *app) Close() error {
	a.coord.Wait()
	return a.store.Close()
}

func addCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add an experience or education entry",
	}
	cmd.AddCommand(addExperienceCmd())
	cmd.AddCommand(addEducationCmd())
	return cmd
}

func addExperienceCmd() *cobra.Command {
	var (
		in       domain.ExperienceInput
		category string
		reflect  bool
	)

	cmd := &cobra.Command{
		Use:   "experience",
		Short: "Record a super-curricular activity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer a.Close()

			in.Category = domain.Category(category)
			entry, err := a.repo.AddExperience(cmd.Context(), in)
			if err != nil {
				return err
			}

			fmt.Printf("Added experience: %s\n", shortID(entry.ID))
			printExperience(entry)

			if reflect {
				return runReflect(cmd.Context(), a, domain.KindExperience, entry.ID)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&in.Title, "title", "", "activity title (required)")
	cmd.Flags().StringVar(&category, "category", "", "one of "+categoryList()+" (default Math)")
	cmd.Flags().StringVar(&in.Date, "date", "", "date, YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&in.Challenge, "challenge", "", "challenge faced (required)")
	cmd.Flags().StringVar(&in.Learning, "learning", "", "what you learned (required)")
	cmd.Flags().StringVar(&in.Link, "link", "", "related link")
	cmd.Flags().BoolVar(&reflect, "reflect", false, "generate a reflection right away")
	return cmd
}

func addEducationCmd() *cobra.Command {
	var (
		in      domain.EducationInput
		reflect bool
	)

	cmd := &cobra.Command{
		Use:   "education",
		Short: "Record a qualification",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer a.Close()

			entry, err := a.repo.AddEducation(cmd.Context(), in)
			if err != nil {
				return err
			}

			fmt.Printf("Added education: %s\n", shortID(entry.ID))
			printEducation(entry)

			if reflect {
				return runReflect(cmd.Context(), a, domain.KindEducation, entry.ID)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&in.School, "school", "", "institution (required)")
	cmd.Flags().StringVar(&in.Qualification, "qualification", "", "qualification")
	cmd.Flags().StringVar(&in.Dates, "dates", "", "dates attended")
	cmd.Flags().StringVar(&in.Subjects, "subjects", "", "subjects studied")
	cmd.Flags().StringVar(&in.Notes, "notes", "", "notes")
	cmd.Flags().BoolVar(&reflect, "reflect", false, "generate an insight right away")
	return cmd
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list [experience|education]",
		Short: "List entries, newest first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kinds := domain.Kinds()
			if len(args) == 1 {
				k, err := domain.ParseKind(args[0])
				if err != nil {
					return err
				}
				kinds = []domain.Kind{k}
			}

			a, err := openApp(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer a.Close()

			for _, k := range kinds {
				entries := a.repo.List(k)
				fmt.Printf("%s (%d)\n", strings.ToUpper(string(k)), len(entries))
				if len(entries) == 0 {
					fmt.Printf("  No entries yet. Use 'cvvault add %s' to create one.\n", k)
					continue
				}
				for _, e := range entries {
					fmt.Printf("  %s  %s\n", shortID(e.EntryID()), truncate(headline(e), 60))
				}
			}
			return nil
		},
	}
}

func showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <kind> <id>",
		Short: "Show entry details",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := domain.ParseKind(args[0])
			if err != nil {
				return err
			}

			a, err := openApp(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer a.Close()

			// Find entry by prefix
			id, err := a.repo.Resolve(kind, args[1])
			if err != nil {
				return err
			}
			entry, _ := a.repo.Get(kind, id)

			switch e := entry.(type) {
			case domain.Experience:
				printExperience(e)
			case domain.Education:
				printEducation(e)
			}
			return nil
		},
	}
}

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <kind> <id>",
		Short: "Delete an entry",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := domain.ParseKind(args[0])
			if err != nil {
				return err
			}

			a, err := openApp(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer a.Close()

			id, err := a.repo.Resolve(kind, args[1])
			if err != nil {
				return err
			}
			if err := a.repo.Delete(cmd.Context(), kind, id); err != nil {
				return err
			}

			fmt.Printf("Deleted %s %s\n", kind, shortID(id))
			return nil
		},
	}
}

func reflectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reflect <kind> <id>",
		Short: "Generate an AI reflection for an entry",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := domain.ParseKind(args[0])
			if err != nil {
				return err
			}

			a, err := openApp(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer a.Close()

			id, err := a.repo.Resolve(kind, args[1])
			if err != nil {
				return err
			}
			return runReflect(cmd.Context(), a, kind, id)
		},
	}
}

func runReflect(ctx context.Context, a *app, kind domain.Kind, id string) error {
	if !a.coord.Trigger(ctx, kind, id) {
		return fmt.Errorf("cannot reflect on %s %s", kind, id)
	}

	fmt.Print("Reflecting... ")
	a.coord.Wait()
	fmt.Println("done")

	entry, ok := a.repo.Get(kind, id)
	if !ok {
		fmt.Println("(entry was deleted)")
		return nil
	}
	fmt.Printf("\n%s\n", entry.ReflectionText())
	return nil
}

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the REST API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, addr)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "server address (overrides config)")
	return cmd
}

func categoryList() string {
	names := make([]string, 0, len(domain.Categories()))
	for _, c := range domain.Categories() {
		names = append(names, string(c))
	}
	return strings.Join(names, ", ")
}
