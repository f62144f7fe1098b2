package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

// Config captures all command-line options of a decode run.
type Config struct {
	MboxPath string

	// OutputDir receives the decoded attachments. Empty disables the
	// directory sink.
	OutputDir     string
	WriteMessages bool

	// IMAPHost enables the IMAP sink when set.
	IMAPHost           string
	IMAPPort           int
	IMAPUser           string
	IMAPPass           string
	UseTLS             bool
	InsecureSkipVerify bool
	TargetFolder       string
	IMAPAll            bool

	StateDir      string
	DryRun        bool
	LogLevel      string
	LogDir        string
	IncludeHeader []string
	IncludeBody   []string
	ExcludeHeader []string
	ExcludeBody   []string

	// CandidatesOnly skips messages without a raw begin line before they
	// are parsed.
	CandidatesOnly bool
}

// HasIMAP reports whether rewritten messages should be appended to an IMAP
// folder.
func (c Config) HasIMAP() bool {
	return c.IMAPHost != ""
}

// HasOutputDir reports whether attachments should be written to disk.
func (c Config) HasOutputDir() bool {
	return c.OutputDir != ""
}

// RegisterFlags attaches all CLI flags to the provided command.
func RegisterFlags(cmd *cobra.Command) error {
	defaultStateDir, err := defaultStateDir()
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	flags.String("mbox", "", "Path to the .mbox file to scan")
	flags.String("output-dir", "", "Directory receiving decoded attachments, one sub-directory per message")
	flags.Bool("write-messages", false, "Also write each rewritten message as message.eml into the output directory")
	flags.String("imap-host", "", "IMAP server hostname; enables appending rewritten messages")
	flags.Int("imap-port", 993, "IMAP server port")
	flags.String("imap-user", "", "IMAP username")
	flags.String("imap-pass", "", "IMAP password (falls back to IMAP_PASS env var)")
	flags.Bool("use-tls", true, "Use TLS for the IMAP connection")
	flags.Bool("insecure-skip-verify", false, "Skip TLS certificate verification (not recommended)")
	flags.String("target-folder", "INBOX", "Target IMAP folder for rewritten mail")
	flags.Bool("imap-all", false, "Append every message, not only those with inline attachments")
	flags.String("state-dir", defaultStateDir, "Directory for incremental state files")
	flags.Bool("dry-run", false, "Decode and emit stats without writing files or uploading")
	flags.String("log-level", "info", "Logging level: debug, info, warn, error")
	flags.String("log-dir", "", "Also write logs to a timestamped file in this directory")
	flags.StringArray("include-header", nil, "Regex allow-list applied to message headers (mutually exclusive with exclude flags)")
	flags.StringArray("include-body", nil, "Regex allow-list applied to message bodies (mutually exclusive with exclude flags)")
	flags.StringArray("exclude-header", nil, "Regex block-list applied to message headers (mutually exclusive with include flags)")
	flags.StringArray("exclude-body", nil, "Regex block-list applied to message bodies (mutually exclusive with include flags)")
	flags.Bool("candidates-only", false, "Skip messages whose raw body has no uuencode or yEnc begin line (misses base64 encoded text parts)")

	return cmd.MarkFlagRequired("mbox")
}

// LoadConfig converts the parsed Cobra flags into a Config struct with validation.
func LoadConfig(cmd *cobra.Command) (Config, error) {
	flags := cmd.Flags()
	var cfg Config
	var err error

	strs := []struct {
		name string
		dst  *string
	}{
		{"mbox", &cfg.MboxPath},
		{"output-dir", &cfg.OutputDir},
		{"imap-host", &cfg.IMAPHost},
		{"imap-user", &cfg.IMAPUser},
		{"imap-pass", &cfg.IMAPPass},
		{"target-folder", &cfg.TargetFolder},
		{"state-dir", &cfg.StateDir},
		{"log-level", &cfg.LogLevel},
		{"log-dir", &cfg.LogDir},
	}
	for _, s := range strs {
		if *s.dst, err = flags.GetString(s.name); err != nil {
			return Config{}, err
		}
	}

	bools := []struct {
		name string
		dst  *bool
	}{
		{"write-messages", &cfg.WriteMessages},
		{"use-tls", &cfg.UseTLS},
		{"insecure-skip-verify", &cfg.InsecureSkipVerify},
		{"imap-all", &cfg.IMAPAll},
		{"dry-run", &cfg.DryRun},
		{"candidates-only", &cfg.CandidatesOnly},
	}
	for _, b := range bools {
		if *b.dst, err = flags.GetBool(b.name); err != nil {
			return Config{}, err
		}
	}

	arrays := []struct {
		name string
		dst  *[]string
	}{
		{"include-header", &cfg.IncludeHeader},
		{"include-body", &cfg.IncludeBody},
		{"exclude-header", &cfg.ExcludeHeader},
		{"exclude-body", &cfg.ExcludeBody},
	}
	for _, a := range arrays {
		if *a.dst, err = flags.GetStringArray(a.name); err != nil {
			return Config{}, err
		}
	}

	if cfg.IMAPPort, err = flags.GetInt("imap-port"); err != nil {
		return Config{}, err
	}

	cfg, err = normalize(cfg)
	if err != nil {
		return Config{}, err
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func normalize(cfg Config) (Config, error) {
	if cfg.IMAPPass == "" {
		cfg.IMAPPass = os.Getenv("IMAP_PASS")
	}

	if cfg.StateDir == "" {
		dir, err := defaultStateDir()
		if err != nil {
			return Config{}, err
		}
		cfg.StateDir = dir
	}
	cfg.StateDir = filepath.Clean(cfg.StateDir)
	if cfg.OutputDir != "" {
		cfg.OutputDir = filepath.Clean(cfg.OutputDir)
	}

	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	return cfg, nil
}

func validateConfig(cfg Config) error {
	if cfg.MboxPath == "" {
		return fmt.Errorf("--mbox is required")
	}
	if !cfg.HasOutputDir() && !cfg.HasIMAP() {
		return fmt.Errorf("at least one of --output-dir or --imap-host is required")
	}
	if cfg.WriteMessages && !cfg.HasOutputDir() {
		return fmt.Errorf("--write-messages requires --output-dir")
	}
	if cfg.HasIMAP() {
		if cfg.IMAPUser == "" {
			return fmt.Errorf("--imap-user is required with --imap-host")
		}
		if cfg.IMAPPass == "" {
			return fmt.Errorf("IMAP password must be provided via --imap-pass or IMAP_PASS env var")
		}
		if cfg.IMAPPort <= 0 || cfg.IMAPPort > 65535 {
			return fmt.Errorf("--imap-port must be between 1 and 65535")
		}
	}
	includeActive := len(cfg.IncludeHeader) > 0 || len(cfg.IncludeBody) > 0
	excludeActive := len(cfg.ExcludeHeader) > 0 || len(cfg.ExcludeBody) > 0
	if includeActive && excludeActive {
		return fmt.Errorf("include and exclude flags are mutually exclusive")
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid --log-level: %s", cfg.LogLevel)
	}

	return nil
}

func defaultStateDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".mbox-inline-decode", "state"), nil
}
