package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dhcgn/mbox-inline-decode/config"
	"github.com/dhcgn/mbox-inline-decode/mimetree"
	"github.com/dhcgn/mbox-inline-decode/model"
	"github.com/dhcgn/mbox-inline-decode/state"
	"github.com/dhcgn/mbox-inline-decode/stats"
)

var ErrSubscribeAfterStart = errors.New("runner: subscribe after start")

type StageFunc func(context.Context) error

type sink struct {
	name string
	ch   chan model.Message
}

// pending tracks a dispatched message until every sink acknowledged it.
type pending struct {
	remaining int
	record    state.Record
}

// Runner moves messages from a producer through the decode stage to every
// subscribed sink. A message is marked processed in the tracker once all
// sinks have acknowledged it.
type Runner struct {
	cfg    config.Config
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	messages chan model.Envelope

	sinks   []sink
	started bool

	eventsMu     sync.RWMutex
	eventSubs    []chan stats.Event
	eventsClosed bool

	tracker state.Tracker

	pendingMu sync.Mutex
	pending   map[string]*pending

	workWG  sync.WaitGroup
	statsWG sync.WaitGroup

	errMu sync.Mutex
	err   error

	closeMailboxOnce sync.Once
	closeSinksOnce   sync.Once
	closeEventsOnce  sync.Once
	since            time.Time
}

func New(cfg config.Config, logger *slog.Logger) (*Runner, error) {
	tracker, err := state.NewFileTracker(cfg.StateDir, !cfg.DryRun)
	if err != nil {
		return nil, fmt.Errorf("state tracker: %w", err)
	}
	return newRunner(cfg, logger, tracker), nil
}

func newRunner(cfg config.Config, logger *slog.Logger, tracker state.Tracker) *Runner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		cfg:      cfg,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		messages: make(chan model.Envelope, 32),
		tracker:  tracker,
		pending:  make(map[string]*pending),
	}
}

func (r *Runner) Config() config.Config {
	return r.cfg
}

func (r *Runner) Logger() *slog.Logger {
	return r.logger
}

func (r *Runner) Context() context.Context {
	return r.ctx
}

func (r *Runner) Tracker() state.Tracker {
	return r.tracker
}

func (r *Runner) MailboxWriter() chan<- model.Envelope {
	return r.messages
}

func (r *Runner) CloseMailbox() {
	r.closeMailboxOnce.Do(func() {
		close(r.messages)
	})
}

// Subscribe registers a sink and returns the channel it receives decoded
// messages on. Every message received must be passed to Ack. The channel
// is closed once the producer is drained.
func (r *Runner) Subscribe(name string) (<-chan model.Message, error) {
	if r.started {
		return nil, ErrSubscribeAfterStart
	}
	ch := make(chan model.Message, 32)
	r.sinks = append(r.sinks, sink{name: name, ch: ch})
	return ch, nil
}

// Ack records that one sink is done with msg.
func (r *Runner) Ack(msg model.Message) error {
	if msg.Hash == "" {
		return nil
	}

	r.pendingMu.Lock()
	p, ok := r.pending[msg.Hash]
	if !ok {
		r.pendingMu.Unlock()
		return nil
	}
	p.remaining--
	if p.remaining > 0 {
		r.pendingMu.Unlock()
		return nil
	}
	delete(r.pending, msg.Hash)
	r.pendingMu.Unlock()

	if err := r.tracker.MarkProcessed(p.record); err != nil {
		return fmt.Errorf("mark %s processed: %w", msg.ID, err)
	}
	return nil
}

func (r *Runner) EmitEvent(evt stats.Event) {
	r.eventsMu.RLock()
	defer r.eventsMu.RUnlock()
	if r.eventsClosed {
		return
	}
	for _, ch := range r.eventSubs {
		select {
		case <-r.ctx.Done():
			return
		case ch <- evt:
		}
	}
}

// SubscribeStats runs fn with its own copy of the event stream.
func (r *Runner) SubscribeStats(name string, fn func(context.Context, <-chan stats.Event) error) {
	ch := make(chan stats.Event, 128)
	r.eventsMu.Lock()
	r.eventSubs = append(r.eventSubs, ch)
	r.eventsMu.Unlock()

	r.statsWG.Add(1)
	go func() {
		defer r.statsWG.Done()
		if err := fn(r.ctx, ch); err != nil && !errors.Is(err, context.Canceled) {
			r.fail(fmt.Errorf("%s stats: %w", name, err))
		}
	}()
}

func (r *Runner) AddStage(name string, fn StageFunc) {
	r.workWG.Add(1)
	go func() {
		defer r.workWG.Done()
		if err := fn(r.ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.fail(fmt.Errorf("%s stage: %w", name, err))
		}
	}()
}

// Start runs the decode stage and blocks until every stage has finished.
func (r *Runner) Start() error {
	r.since = time.Now()
	r.started = true
	r.AddStage("decode", r.decode)

	r.workWG.Wait()
	r.closeEvents()
	r.statsWG.Wait()

	r.cancel()

	if err := r.tracker.Close(); err != nil {
		r.fail(fmt.Errorf("close state: %w", err))
	}

	r.errMu.Lock()
	err := r.err
	r.errMu.Unlock()
	duration := time.Since(r.since)
	if err != nil {
		r.logger.Error("pipeline failed", "duration", duration, "err", err)
		return err
	}

	snap := r.tracker.Snapshot()
	r.logger.Info("pipeline completed", "duration", duration, "processed", snap.Processed, "rewritten", snap.Rewritten)
	return nil
}

func (r *Runner) decode(ctx context.Context) error {
	defer r.closeSinks()
	seen := make(map[string]struct{})
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case envelope, ok := <-r.messages:
			if !ok {
				return nil
			}

			if envelope.Err != nil {
				r.EmitEvent(stats.Event{Stage: stats.StageMbox, Type: stats.EventTypeError, Err: envelope.Err})
				continue
			}

			msg := envelope.Message
			r.EmitEvent(stats.Event{Stage: stats.StageMbox, Type: stats.EventTypeScanned, MessageID: msg.ID})

			if msg.Hash != "" {
				_, dup := seen[msg.Hash]
				if dup || r.tracker.AlreadyProcessed(msg.Hash) {
					r.EmitEvent(stats.Event{Stage: stats.StageMbox, Type: stats.EventTypeDuplicate, MessageID: msg.ID})
					continue
				}
				seen[msg.Hash] = struct{}{}
			}

			msg = r.rewrite(msg)
			if err := r.dispatch(ctx, msg); err != nil {
				return err
			}
		}
	}
}

// rewrite decodes inline attachments. A message that cannot be rewritten
// is passed on unchanged.
func (r *Runner) rewrite(msg model.Message) model.Message {
	logger := r.logger.With("messageID", msg.ID)
	res, err := mimetree.Rewrite(msg.Raw, mimetree.Options{Logger: logger})
	if err != nil {
		logger.Warn("Leaving message unchanged", "err", err)
		r.EmitEvent(stats.Event{Stage: stats.StageDecode, Type: stats.EventTypeError, MessageID: msg.ID, Err: err})
		return msg
	}
	if !res.Changed {
		r.EmitEvent(stats.Event{Stage: stats.StageDecode, Type: stats.EventTypePlain, MessageID: msg.ID})
		return msg
	}

	msg = res.Apply(msg)
	for _, a := range msg.Attachments {
		r.EmitEvent(stats.Event{Stage: stats.StageDecode, Type: stats.EventTypeAttachment, MessageID: msg.ID, Detail: a.Encoding})
	}
	logger.Debug("Rewrote message", "attachments", len(msg.Attachments), "size", len(msg.Rewritten))
	r.EmitEvent(stats.Event{Stage: stats.StageDecode, Type: stats.EventTypeRewritten, MessageID: msg.ID})
	return msg
}

func (r *Runner) dispatch(ctx context.Context, msg model.Message) error {
	rec := state.Record{Hash: msg.Hash, MessageID: msg.ID, Attachments: len(msg.Attachments)}
	if len(r.sinks) == 0 {
		return r.tracker.MarkProcessed(rec)
	}

	if msg.Hash != "" {
		r.pendingMu.Lock()
		r.pending[msg.Hash] = &pending{remaining: len(r.sinks), record: rec}
		r.pendingMu.Unlock()
	}

	for _, s := range r.sinks {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case s.ch <- msg:
		}
	}
	r.EmitEvent(stats.Event{Stage: stats.StageDecode, Type: stats.EventTypeEnqueued, MessageID: msg.ID})
	return nil
}

func (r *Runner) closeSinks() {
	r.closeSinksOnce.Do(func() {
		for _, s := range r.sinks {
			close(s.ch)
		}
	})
}

func (r *Runner) closeEvents() {
	r.closeEventsOnce.Do(func() {
		r.eventsMu.Lock()
		defer r.eventsMu.Unlock()
		r.eventsClosed = true
		for _, ch := range r.eventSubs {
			close(ch)
		}
	})
}

func (r *Runner) fail(err error) {
	if err == nil {
		return
	}
	r.errMu.Lock()
	if r.err == nil {
		r.err = err
		r.cancel()
	}
	r.errMu.Unlock()
}
