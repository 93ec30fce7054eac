package trymerge

import (
	"context"

	"go.uber.org/zap"

	"github.com/simplesurance/trymerger/internal/command"
	"github.com/simplesurance/trymerger/internal/filter"
	"github.com/simplesurance/trymerger/internal/logfields"
	"github.com/simplesurance/trymerger/internal/provider"
	"github.com/simplesurance/trymerger/internal/store"
)

const DefEventChannelBufferSize = 512

// Dispatcher starts try-merges.
type Dispatcher interface {
	Dispatch(ctx context.Context, repo *store.Repository, prNumber int, command string) bool
}

// EvLoop receives comment events, extracts commands from them and
// dispatches try-merges.
type EvLoop struct {
	ch         chan *provider.Event
	logger     *zap.Logger
	dispatcher Dispatcher
	extractor  *command.Extractor
	filter     *filter.Filter

	done chan struct{}
}

// WithFilter sets a filter that events must match to be processed.
func WithFilter(f *filter.Filter) func(*EvLoop) {
	return func(e *EvLoop) {
		e.filter = f
	}
}

// WithEventChannelBufferSize sets the buffer size of the event channel.
func WithEventChannelBufferSize(size int) func(*EvLoop) {
	return func(e *EvLoop) {
		e.ch = make(chan *provider.Event, size)
	}
}

func NewEventLoop(dispatcher Dispatcher, extractor *command.Extractor, opts ...func(*EvLoop)) *EvLoop {
	evl := EvLoop{
		dispatcher: dispatcher,
		extractor:  extractor,
		done:       make(chan struct{}),
	}

	for _, opt := range opts {
		opt(&evl)
	}

	if evl.ch == nil {
		evl.ch = make(chan *provider.Event, DefEventChannelBufferSize)
	}

	if evl.logger == nil {
		evl.logger = zap.L().Named("event-loop")
	}

	return &evl
}

// C returns the event channel.
// Events sent to this channel will be processed.
// The channel is closed when Stop() is called.
func (e *EvLoop) C() chan<- *provider.Event {
	return e.ch
}

// Start processes events until Stop() is called.
func (e *EvLoop) Start() {
	defer close(e.done)

	ctx := context.Background()
	e.logger.Info("ready to process events", logfields.Event("eventloop_started"))

	for ev := range e.ch {
		e.process(ctx, ev)
	}

	e.logger.Info(
		"event loop terminated, event channel was closed",
		logfields.Event("eventloop_terminated"),
	)
}

func toStoreRepository(r *provider.Repository) *store.Repository {
	return &store.Repository{
		ID:            r.ID,
		Name:          r.Name,
		FullName:      r.FullName,
		Owner:         r.Owner,
		DefaultBranch: r.DefaultBranch,
	}
}

func (e *EvLoop) process(ctx context.Context, ev *provider.Event) {
	metrics.ProcessedEventsInc()

	logger := e.logger.With(ev.LogFields()...)
	logger.Debug("event received", logfields.Event("event_received"))

	if ev.Repository == nil || ev.PullRequestNr == 0 {
		logger.Debug(
			"ignoring event, it is not related to a pull request",
			logfields.Event("event_ignored"),
		)
		return
	}

	cmd := e.extractor.Extract(ev.CommentBody)
	if cmd == "" {
		logger.Debug(
			"ignoring event, comment does not contain a command",
			logfields.Event("event_ignored"),
		)
		return
	}

	logger = logger.With(logfields.Command(cmd))

	if e.filter != nil {
		match, err := e.filter.Match(ctx, ev.JSON)
		if err != nil {
			logger.Error(
				"evaluating filter query failed, event is ignored",
				logfields.Event("filter_evaluation_failed"),
				zap.String("filter_query", e.filter.String()),
				zap.Error(err),
			)
			return
		}

		if !match {
			logger.Info(
				"ignoring command, event does not match filter query",
				logfields.Event("event_filtered"),
				zap.String("filter_query", e.filter.String()),
			)
			return
		}
	}

	if e.dispatcher.Dispatch(ctx, toStoreRepository(ev.Repository), ev.PullRequestNr, cmd) {
		logger.Info("try-merge dispatched", logfields.Event("trymerge_dispatched"))
	}
}

// Stop stops the event loop and waits until all queued events were
// processed. Start() must have been called before.
// The event channel (Evloop.C()) will be closed.
func (e *EvLoop) Stop() {
	e.logger.Debug("event loop terminating", logfields.Event("eventloop_terminating"))
	close(e.ch)
	<-e.done
}
