package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/dhcgn/mbox-inline-decode/config"
	"github.com/dhcgn/mbox-inline-decode/filter"
	"github.com/dhcgn/mbox-inline-decode/imap"
	"github.com/dhcgn/mbox-inline-decode/mbox"
	"github.com/dhcgn/mbox-inline-decode/outdir"
	"github.com/dhcgn/mbox-inline-decode/progress"
	"github.com/dhcgn/mbox-inline-decode/runner"
	"github.com/dhcgn/mbox-inline-decode/stats"
)

const appName = "mbox-inline-decode"

var rootCmd = &cobra.Command{
	Use:   appName,
	Short: "Turn inline uuencode and yEnc attachments in mbox archives into MIME parts",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(cmd)
		if err != nil {
			return err
		}

		logger, cleanup, err := setupLogger(cfg)
		if err != nil {
			return err
		}
		defer func() {
			_ = cleanup()
		}()

		slog.SetDefault(logger)
		logger.Info("starting "+appName, "mbox", cfg.MboxPath, "outputDir", cfg.OutputDir, "imapHost", cfg.IMAPHost, "dryRun", cfg.DryRun)

		return run(cfg, logger)
	},
}

// Execute runs the root command and exits on error.
func Execute() {
	if err := config.RegisterFlags(rootCmd); err != nil {
		fmt.Fprintf(os.Stderr, "failed to register CLI flags: %v\n", err)
		os.Exit(1)
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	r, err := runner.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("runner.New: %w", err)
	}
	stats.NewReporter(r, logger)

	var bar *progress.Bar
	if cfg.LogLevel == "info" {
		total, err := mbox.CountMessages(cfg.MboxPath)
		if err != nil {
			logger.Warn("counting messages failed, progress bar disabled", "err", err)
		} else {
			bar = progress.New(total, r.Tracker().Snapshot().Processed, cfg.LogLevel)
		}
	}
	reporter := progress.NewProgressReporter(r, bar, logger)

	readerOpts := mbox.Options{
		Path:           cfg.MboxPath,
		IncludeHeader:  cfg.IncludeHeader,
		IncludeBody:    cfg.IncludeBody,
		ExcludeHeader:  cfg.ExcludeHeader,
		ExcludeBody:    cfg.ExcludeBody,
		CandidatesOnly: cfg.CandidatesOnly,
	}

	producer, err := mbox.NewProducer(readerOpts, r, logger)
	if err != nil {
		return fmt.Errorf("mbox.NewProducer: %w", err)
	}

	if cfg.HasOutputDir() {
		writerOpts := outdir.Options{
			Dir:           cfg.OutputDir,
			WriteMessages: cfg.WriteMessages,
			DryRun:        cfg.DryRun,
		}
		if _, err := outdir.NewWriter(writerOpts, r, logger); err != nil {
			return fmt.Errorf("outdir.NewWriter: %w", err)
		}
	}

	if cfg.HasIMAP() {
		uploaderOpts := imap.Options{
			Host:               cfg.IMAPHost,
			Port:               cfg.IMAPPort,
			Username:           cfg.IMAPUser,
			Password:           cfg.IMAPPass,
			UseTLS:             cfg.UseTLS,
			InsecureSkipVerify: cfg.InsecureSkipVerify,
			TargetFolder:       cfg.TargetFolder,
			DryRun:             cfg.DryRun,
			All:                cfg.IMAPAll,
		}
		if _, err := imap.NewUploader(uploaderOpts, r, logger); err != nil {
			return fmt.Errorf("imap.NewUploader: %w", err)
		}
	}

	err = r.Start()
	reporter.Finish()
	logFilterStats(logger, producer.FilterStats())
	return err
}

func logFilterStats(logger *slog.Logger, s filter.Stats) {
	if len(s.Hits) == 0 && s.NotCandidates == 0 {
		return
	}
	logger.Info("filter summary", "allowed", s.Allowed, "rejected", s.Rejected, "notCandidates", s.NotCandidates)
	for _, h := range s.Hits {
		logger.Debug("filter pattern", "group", h.Group, "pattern", h.Pattern, "hits", h.Count)
	}
}

func setupLogger(cfg config.Config) (*slog.Logger, func() error, error) {
	level := new(slog.LevelVar)
	level.Set(slog.LevelInfo)

	switch cfg.LogLevel {
	case "debug":
		level.Set(slog.LevelDebug)
	case "info":
		level.Set(slog.LevelInfo)
	case "warn":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	}

	opts := &slog.HandlerOptions{Level: level}
	cleanup := func() error { return nil }

	if cfg.LogDir != "" {
		if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
			return nil, cleanup, err
		}

		logFilePath := filepath.Join(cfg.LogDir, fmt.Sprintf("%s-%s.log", appName, time.Now().Format("20060102T150405")))
		file, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, cleanup, err
		}

		handler := slog.NewTextHandler(io.MultiWriter(os.Stdout, file), opts)
		cleanup = func() error {
			return file.Close()
		}
		return slog.New(handler), cleanup, nil
	}

	handler := slog.NewTextHandler(os.Stdout, opts)
	return slog.New(handler), cleanup, nil
}
