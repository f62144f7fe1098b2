package imap

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"

	imapv2 "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/dhcgn/mbox-inline-decode/model"
	"github.com/dhcgn/mbox-inline-decode/runner"
	"github.com/dhcgn/mbox-inline-decode/stats"
)

var ErrMissingMessageID = errors.New("message id is empty")

type Options struct {
	Host               string
	Port               int
	Username           string
	Password           string
	UseTLS             bool
	InsecureSkipVerify bool
	TargetFolder       string
	DryRun             bool
	// All appends messages without inline attachments too. They are sent
	// as found in the archive.
	All bool
}

type Uploader struct {
	opts    Options
	runner  *runner.Runner
	uploads <-chan model.Message
	logger  *slog.Logger

	// client is dialed on the first append and only used by run.
	client  *imapclient.Client
	cleanup func()
}

func NewUploader(opts Options, r *runner.Runner, logger *slog.Logger) (*Uploader, error) {
	if opts.Host == "" {
		return nil, fmt.Errorf("imap host is empty")
	}
	if opts.Port <= 0 {
		return nil, fmt.Errorf("imap port must be positive")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	uploads, err := r.Subscribe(string(stats.StageIMAP))
	if err != nil {
		return nil, err
	}
	uploader := &Uploader{
		opts:    opts,
		runner:  r,
		uploads: uploads,
		logger:  logger,
	}
	r.AddStage(string(stats.StageIMAP), uploader.run)
	return uploader, nil
}

func (u *Uploader) run(ctx context.Context) error {
	defer func() {
		if u.cleanup != nil {
			u.cleanup()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-u.uploads:
			if !ok {
				return nil
			}
			if err := u.handle(ctx, msg); err != nil {
				u.runner.EmitEvent(stats.Event{Stage: stats.StageIMAP, Type: stats.EventTypeError, MessageID: msg.ID, Err: err})
				return err
			}
			if err := u.runner.Ack(msg); err != nil {
				return err
			}
		}
	}
}

// shouldAppend reports whether msg goes to the IMAP folder at all.
func (u *Uploader) shouldAppend(msg model.Message) bool {
	return u.opts.All || msg.IsRewritten()
}

func (u *Uploader) handle(ctx context.Context, msg model.Message) error {
	if msg.ID == "" {
		return ErrMissingMessageID
	}
	if !u.shouldAppend(msg) {
		u.runner.EmitEvent(stats.Event{Stage: stats.StageIMAP, Type: stats.EventTypeSkipped, MessageID: msg.ID})
		return nil
	}

	if u.opts.DryRun {
		u.runner.EmitEvent(stats.Event{Stage: stats.StageIMAP, Type: stats.EventTypeDryRunUpload, MessageID: msg.ID})
		u.logger.Debug("dry-run upload", "messageID", msg.ID, "target", u.targetFolder(), "rewritten", msg.IsRewritten())
		return nil
	}

	if u.client == nil {
		client, cleanup, err := u.dial(ctx)
		if err != nil {
			return err
		}
		u.client, u.cleanup = client, cleanup
	}

	if err := u.appendMessage(u.client, msg); err != nil {
		return fmt.Errorf("upload message %s: %w", msg.ID, err)
	}

	u.runner.EmitEvent(stats.Event{Stage: stats.StageIMAP, Type: stats.EventTypeUploaded, MessageID: msg.ID})
	u.logger.Debug("uploaded message", "messageID", msg.ID, "target", u.targetFolder(), "attachments", len(msg.Attachments))
	return nil
}

func (u *Uploader) dial(ctx context.Context) (*imapclient.Client, func(), error) {
	address := net.JoinHostPort(u.opts.Host, strconv.Itoa(u.opts.Port))
	options := &imapclient.Options{}

	if u.opts.UseTLS {
		options.TLSConfig = &tls.Config{
			ServerName:         u.opts.Host,
			InsecureSkipVerify: u.opts.InsecureSkipVerify,
		}
	}

	var (
		client *imapclient.Client
		err    error
	)

	if u.opts.UseTLS {
		client, err = imapclient.DialTLS(address, options)
	} else {
		client, err = imapclient.DialInsecure(address, options)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("dial imap %s: %w", address, err)
	}

	if err := client.Login(u.opts.Username, u.opts.Password).Wait(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("imap login failed: %w", err)
	}

	if err := u.ensureMailbox(client); err != nil {
		_ = client.Close()
		return nil, nil, err
	}

	u.logger.Debug("imap connection established", "address", address, "user", u.opts.Username, "target", u.targetFolder(), "tls", u.opts.UseTLS)

	stopClose := context.AfterFunc(ctx, func() {
		_ = client.Close()
	})

	cleanup := func() {
		stopClose()
		if ctx.Err() == nil {
			if err := client.Logout().Wait(); err != nil {
				u.logger.Warn("imap logout failed", "err", err)
			}
		}
		if err := client.Close(); err != nil {
			u.logger.Debug("imap connection closed", "err", err)
		}
	}

	return client, cleanup, nil
}

func (u *Uploader) appendMessage(client *imapclient.Client, msg model.Message) error {
	target := u.targetFolder()
	data := msg.Output()

	cmd := client.Append(target, int64(len(data)), appendOptions(msg))

	remaining := data
	for len(remaining) > 0 {
		n, err := cmd.Write(remaining)
		if err != nil {
			_ = cmd.Close()
			return fmt.Errorf("append write: %w", err)
		}
		if n == 0 {
			_ = cmd.Close()
			return fmt.Errorf("append write: wrote 0 bytes")
		}
		remaining = remaining[n:]
	}

	if err := cmd.Close(); err != nil {
		return fmt.Errorf("append close: %w", err)
	}

	if _, err := cmd.Wait(); err != nil {
		return fmt.Errorf("append wait: %w", err)
	}

	return nil
}

func appendOptions(msg model.Message) *imapv2.AppendOptions {
	if msg.ReceivedAt.IsZero() {
		return nil
	}
	return &imapv2.AppendOptions{Time: msg.ReceivedAt}
}

func (u *Uploader) targetFolder() string {
	if u.opts.TargetFolder == "" {
		return "INBOX"
	}
	return u.opts.TargetFolder
}

func (u *Uploader) ensureMailbox(client *imapclient.Client) error {
	target := u.targetFolder()
	cmd := client.Create(target, nil)
	if err := cmd.Wait(); err != nil {
		var respErr *imapv2.Error
		if errors.As(err, &respErr) {
			if respErr.Code == imapv2.ResponseCodeAlreadyExists {
				u.logger.Debug("imap mailbox already exists", "mailbox", target)
				return nil
			}
		}
		return fmt.Errorf("ensure mailbox %s: %w", target, err)
	}

	u.logger.Info("imap mailbox created", "mailbox", target)

	return nil
}
