package cmd

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dhcgn/mbox-inline-decode/extract"
	"github.com/dhcgn/mbox-inline-decode/filter"
	"github.com/dhcgn/mbox-inline-decode/mbox"
	"github.com/dhcgn/mbox-inline-decode/mimetree"
	"github.com/dhcgn/mbox-inline-decode/stats"
)

const refreshEvery = 250

// Report categories, in print order.
var categories = []string{"Filename", "Content-Type", "From", "Newsgroups"}

var (
	reportDir      string
	topN           int
	includeHeader  []string
	includeBody    []string
	excludeHeader  []string
	excludeBody    []string
	candidatesOnly bool
)

var statsCmd = &cobra.Command{
	Use:   "stats [mbox file]",
	Short: "Count inline uuencode and yEnc attachments in an mbox file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mboxPath := args[0]
		out := color.Output

		fmt.Fprintln(out, "Analyzing mbox file:", mboxPath)

		f, err := filter.New(filter.Options{
			IncludeHeader:  includeHeader,
			IncludeBody:    includeBody,
			ExcludeHeader:  excludeHeader,
			ExcludeBody:    excludeBody,
			CandidatesOnly: candidatesOnly,
		})
		if err != nil {
			return fmt.Errorf("create filter: %w", err)
		}

		s := newInlineStats()
		refresh := func() {
			// Clear screen and move the cursor home.
			fmt.Fprint(out, "\033[H\033[2J")
			s.print(out, f.Stats(), topN)
		}

		err = mbox.Read(mboxPath, func(m *mbox.MboxMessage) error {
			header, body := filter.SplitRawMessage(m.Raw)
			if !f.Allows(header, body) {
				s.skipped++
				return nil
			}
			s.add(m)
			if s.messages%refreshEvery == 0 {
				refresh()
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("error reading mbox file: %w", err)
		}

		refresh()

		if err := saveCSVReports(s.counters, categories, reportDir, 1000); err != nil {
			return fmt.Errorf("error saving CSV reports: %w", err)
		}
		fmt.Fprintf(out, "\nReports saved to directory: %s\n", reportDir)
		return nil
	},
}

func init() {
	flags := statsCmd.Flags()
	flags.StringVarP(&reportDir, "output", "o", ".", "Output directory for CSV reports")
	flags.IntVarP(&topN, "top", "t", 10, "Number of top items to display in statistics")
	flags.StringArrayVar(&includeHeader, "include-header", nil, "Regex allow-list applied to message headers (mutually exclusive with exclude flags)")
	flags.StringArrayVar(&includeBody, "include-body", nil, "Regex allow-list applied to message bodies (mutually exclusive with exclude flags)")
	flags.StringArrayVar(&excludeHeader, "exclude-header", nil, "Regex block-list applied to message headers (mutually exclusive with include flags)")
	flags.StringArrayVar(&excludeBody, "exclude-body", nil, "Regex block-list applied to message bodies (mutually exclusive with include flags)")
	flags.BoolVar(&candidatesOnly, "candidates-only", false, "Only parse messages whose raw body has a begin line")
	rootCmd.AddCommand(statsCmd)
}

// inlineStats accumulates what the stats command prints.
type inlineStats struct {
	messages        int
	skipped         int
	unparsable      int
	withAttachments int
	byKind          map[extract.Kind]int
	counters        map[string]map[string]int
}

func newInlineStats() *inlineStats {
	s := &inlineStats{
		byKind:   make(map[extract.Kind]int),
		counters: make(map[string]map[string]int),
	}
	for _, c := range categories {
		s.counters[c] = make(map[string]int)
	}
	return s
}

func (s *inlineStats) add(m *mbox.MboxMessage) {
	s.messages++

	root, err := mimetree.Parse(m.Raw)
	if err != nil {
		s.unparsable++
		return
	}
	_, report, err := mimetree.Reassemble(root, mimetree.Options{})
	if err != nil {
		s.unparsable++
		return
	}
	if len(report.Attachments) == 0 {
		return
	}

	s.withAttachments++
	for _, p := range report.Attachments {
		s.byKind[p.Kind]++
		s.counters["Filename"][p.Filename]++
		s.counters["Content-Type"][p.ContentType.String()]++
	}
	for _, h := range []string{"From", "Newsgroups"} {
		if v := strings.TrimSpace(m.Header.Get(h)); v != "" {
			s.counters[h][v]++
		}
	}
}

func (s *inlineStats) print(w io.Writer, fs filter.Stats, top int) {
	total := s.messages + s.skipped
	var filterPercent float64
	if total > 0 {
		filterPercent = float64(s.skipped) / float64(total) * 100
	}
	fmt.Fprintf(w, "Processed %d messages (skipped %d by filters, %.2f%%)...\n", s.messages, s.skipped, filterPercent)
	fmt.Fprintf(w, "Messages with inline attachments: %s\n", color.HiGreenString(strconv.Itoa(s.withAttachments)))
	fmt.Fprintf(w, "  uuencode: %d  yEnc: %d", s.byKind[extract.KindUU], s.byKind[extract.KindYEnc])
	if s.unparsable > 0 {
		fmt.Fprintf(w, "  unparsable: %s", color.HiRedString(strconv.Itoa(s.unparsable)))
	}
	fmt.Fprint(w, "\n\n")

	if len(fs.Hits) > 0 {
		printFilterHits(w, fs.Hits)
		fmt.Fprintln(w, "---")
		fmt.Fprintln(w)
	}

	for _, c := range categories {
		fmt.Fprintln(w, color.HiCyanString("Top %d %s:", top, c))
		stats.WriteTop(w, s.counters[c], top)
		fmt.Fprintln(w)
	}
}

func printFilterHits(w io.Writer, hits []filter.Hit) {
	var group filter.Group
	for _, h := range hits {
		if h.Group != group {
			group = h.Group
			fmt.Fprintln(w, color.HiCyanString("%s filters:", group))
		}
		if h.Count > 0 {
			fmt.Fprintf(w, "  %s %s: %d hits\n", color.GreenString("✓"), h.Pattern, h.Count)
		} else {
			fmt.Fprintf(w, "  %s %s: 0 hits\n", color.RedString("✗"), h.Pattern)
		}
	}
	fmt.Fprintln(w)
}

func saveCSVReports(counter map[string]map[string]int, names []string, dir string, limit int) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	for _, name := range names {
		filePath := filepath.Join(dir, fmt.Sprintf("report_%s.csv", normalizeHeaderName(name)))
		if err := writeCSV(filePath, stats.Top(counter[name], limit)); err != nil {
			return err
		}
	}
	return nil
}

func writeCSV(path string, counts []stats.Count) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"Value", "Count"}); err != nil {
		return err
	}
	for _, c := range counts {
		if err := writer.Write([]string{c.Key, strconv.Itoa(c.Value)}); err != nil {
			return err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return err
	}
	return file.Close()
}

func normalizeHeaderName(header string) string {
	name := strings.ToLower(header)
	name = strings.ReplaceAll(name, "-", "_")
	name = strings.ReplaceAll(name, " ", "_")
	return name
}
