package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/maximevalette/backups-reporter/internal/collector"
	"github.com/maximevalette/backups-reporter/internal/config"
	"github.com/maximevalette/backups-reporter/internal/domain"
	"github.com/maximevalette/backups-reporter/internal/lifecycle"
	"github.com/maximevalette/backups-reporter/internal/notify"
	"github.com/maximevalette/backups-reporter/internal/report"
	"github.com/maximevalette/backups-reporter/internal/source"
)

const version = "1.0.0"

var (
	cfgFile    string
	outputJSON bool
)

var rootCmd = &cobra.Command{
	Use:   "backups-reporter",
	Short: "Backup monitoring and reporting tool",
	Long: `A cron-friendly tool that polls Borg repositories and S3 buckets,
aggregates their recent backups into a report, delivers it by email and
pings monitoring webhooks about the outcome.`,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Collect, report and notify",
	Long:  `Run the full pipeline: poll every configured source, email the aggregated report and signal start/success/failure to the configured webhooks.`,
	Args:  cobra.NoArgs,
	RunE:  runReport,
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Collect and print the report",
	Long:  `Poll every configured source and print the aggregated report to stdout without sending email or webhook notifications. Useful for verifying a configuration.`,
	Args:  cobra.NoArgs,
	RunE:  runShow,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("backups-reporter %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.yaml", "config file")
	showCmd.Flags().BoolVar(&outputJSON, "json", false, "output in JSON format")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}))
	return cfg, logger, nil
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func buildProviders(cfg *config.Config, logger *slog.Logger) []source.Provider {
	providers := make([]source.Provider, 0, len(cfg.BorgRepositories)+len(cfg.S3Buckets))
	for _, repo := range cfg.BorgRepositories {
		providers = append(providers, source.NewBorgProvider(repo, logger))
	}
	for _, bucket := range cfg.S3Buckets {
		providers = append(providers, source.NewS3Provider(bucket, logger))
	}
	return providers
}

func runReport(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	coll := collector.New(buildProviders(cfg, logger), cfg.EntriesPerSource, cfg.MaxTotalEntries, logger)
	notifier := notify.NewNotifier(cfg.Webhooks, logger)

	var mailer *notify.Mailer
	if cfg.Email != nil {
		mailer = notify.NewMailer(*cfg.Email, logger)
	}

	runner := lifecycle.NewRunner(coll, mailer, notifier, cfg.FailWhenAllSourcesFail, logger)
	return runner.Run(ctx)
}

func runShow(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	coll := collector.New(buildProviders(cfg, logger), cfg.EntriesPerSource, cfg.MaxTotalEntries, logger)
	rep := coll.Collect(ctx)

	if outputJSON {
		return writeJSON(os.Stdout, rep)
	}
	report.RenderTable(os.Stdout, rep)
	return nil
}

type entryView struct {
	Source    string `json:"source"`
	Name      string `json:"name"`
	Timestamp string `json:"timestamp"`
	Size      *int64 `json:"size"`
	Kind      string `json:"kind"`
}

type statusView struct {
	Source string `json:"source"`
	Error  string `json:"error,omitempty"`
}

type reportView struct {
	RunID       string       `json:"run_id"`
	GeneratedAt string       `json:"generated_at"`
	Entries     []entryView  `json:"entries"`
	Statuses    []statusView `json:"statuses"`
}

func writeJSON(w io.Writer, rep *domain.Report) error {
	view := reportView{
		RunID:       rep.RunID,
		GeneratedAt: rep.GeneratedAt.Format(time.RFC3339),
		Entries:     []entryView{},
		Statuses:    []statusView{},
	}
	for _, entry := range rep.Entries {
		view.Entries = append(view.Entries, entryView{
			Source:    entry.Source,
			Name:      entry.Name,
			Timestamp: entry.Timestamp.Format(time.RFC3339),
			Size:      entry.Size,
			Kind:      string(entry.Kind),
		})
	}
	sources := make([]string, 0, len(rep.Statuses))
	for name := range rep.Statuses {
		sources = append(sources, name)
	}
	sort.Strings(sources)
	for _, name := range sources {
		status := statusView{Source: name}
		if err := rep.Statuses[name]; err != nil {
			status.Error = err.Error()
		}
		view.Statuses = append(view.Statuses, status)
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(view)
}
