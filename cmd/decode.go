package cmd

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-message/textproto"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dhcgn/mbox-inline-decode/mimetree"
	"github.com/dhcgn/mbox-inline-decode/model"
	"github.com/dhcgn/mbox-inline-decode/outdir"
)

var (
	decodeOutputDir string
	decodeOut       string
	decodeVerbose   bool
)

var decodeCmd = &cobra.Command{
	Use:   "decode [message file|-]...",
	Short: "Decode inline attachments of a message or of a post split across articles",
	Long: `Decode inline uuencode and yEnc attachments of one RFC 5322 message.

When several files are given they are taken as the articles of one post, in
order. Their bodies are joined under the header of the first article before
decoding, so attachments split across articles come out whole.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		articles, err := readArticles(args, cmd.InOrStdin())
		if err != nil {
			return err
		}

		level := slog.LevelWarn
		if decodeVerbose {
			level = slog.LevelDebug
		}
		logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

		msg, err := decodeMessage(articles, messageName(args[0]), logger)
		if err != nil {
			return err
		}

		if decodeOutputDir != "" && msg.IsRewritten() {
			paths, err := outdir.Save(decodeOutputDir, msg, false, logger)
			if err != nil {
				return fmt.Errorf("save attachments: %w", err)
			}
			for _, p := range paths {
				fmt.Fprintln(cmd.ErrOrStderr(), "wrote", p)
			}
		}

		switch decodeOut {
		case "":
		case "-":
			if _, err := cmd.OutOrStdout().Write(msg.Output()); err != nil {
				return err
			}
		default:
			if err := os.WriteFile(decodeOut, msg.Output(), 0o644); err != nil {
				return fmt.Errorf("write message: %w", err)
			}
		}

		printAttachments(cmd.ErrOrStderr(), msg)
		return nil
	},
}

func init() {
	flags := decodeCmd.Flags()
	flags.StringVar(&decodeOutputDir, "output-dir", "", "Write decoded attachments below this directory")
	flags.StringVar(&decodeOut, "out", "", "Write the rewritten message to this file, - for stdout")
	flags.BoolVarP(&decodeVerbose, "verbose", "v", false, "Log scanner decisions")
	rootCmd.AddCommand(decodeCmd)
}

func readArticles(paths []string, stdin io.Reader) ([][]byte, error) {
	articles := make([][]byte, 0, len(paths))
	stdinUsed := false
	for _, p := range paths {
		if p == "-" {
			if stdinUsed {
				return nil, fmt.Errorf("stdin can only be read once")
			}
			stdinUsed = true
		}
		raw, err := readMessage(p, stdin)
		if err != nil {
			return nil, err
		}
		articles = append(articles, raw)
	}
	return articles, nil
}

func readMessage(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read message: %w", err)
	}
	return raw, nil
}

// messageName is used as the message ID when the header has none.
func messageName(path string) string {
	if path == "-" {
		return "stdin"
	}
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

// decodeMessage rewrites the articles of one post. The message ID and
// date come from the first article.
func decodeMessage(articles [][]byte, fallbackID string, logger *slog.Logger) (model.Message, error) {
	first := articles[0]
	msg := model.Message{ID: fallbackID, Raw: first}

	th, err := textproto.ReadHeader(bufio.NewReader(bytes.NewReader(first)))
	if err != nil {
		return msg, fmt.Errorf("parse header: %w", err)
	}
	h := mail.Header{Header: message.Header{Header: th}}
	if id, err := h.MessageID(); err == nil && id != "" {
		msg.ID = id
	}
	if date, err := h.Date(); err == nil {
		msg.ReceivedAt = date
	}

	res, err := mimetree.RewriteArticles(articles, mimetree.Options{Logger: logger.With("messageID", msg.ID)})
	if err != nil {
		return msg, fmt.Errorf("rewrite %s: %w", msg.ID, err)
	}
	if len(articles) > 1 {
		msg.Raw = res.Raw
	}
	msg.Size = int64(len(msg.Raw))
	return res.Apply(msg), nil
}

func printAttachments(w io.Writer, msg model.Message) {
	if !msg.IsRewritten() {
		fmt.Fprintln(w, color.HiYellowString("No inline attachments in %s", msg.ID))
		return
	}
	fmt.Fprintln(w, color.HiCyanString("%d inline attachments in %s", len(msg.Attachments), msg.ID))
	for _, a := range msg.Attachments {
		name := a.Filename
		if name == "" {
			name = "(unnamed)"
		}
		fmt.Fprintf(w, "  %s %s %s %d bytes\n",
			color.HiMagentaString("%-4s", a.Encoding), color.HiWhiteString(name), a.ContentType, len(a.Data))
	}
}
