// Package logging builds the process logger: a text handler, optionally
// fanned out to a Seq server.
package logging

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	slogseq "github.com/sokkalf/slog-seq"
)

// Options configures Setup.
type Options struct {
	Level  slog.Level
	Writer io.Writer

	// SeqURL enables the Seq sink when set.
	SeqURL string

	// FlushInterval bounds how long Seq events wait in a batch.
	FlushInterval time.Duration
}

// multiHandler forwards log records to multiple handlers.
type multiHandler struct {
	handlers []slog.Handler
}

func (m *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range m.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		handlers[i] = h.WithAttrs(attrs)
	}
	return &multiHandler{handlers: handlers}
}

func (m *multiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		handlers[i] = h.WithGroup(name)
	}
	return &multiHandler{handlers: handlers}
}

// Fanout returns a handler that sends every record to each handler that
// accepts its level.
func Fanout(handlers ...slog.Handler) slog.Handler {
	return &multiHandler{handlers: handlers}
}

// Setup builds the logger and returns a function that flushes and closes any
// remote sink.
func Setup(opts Options) (*slog.Logger, func()) {
	handlerOpts := &slog.HandlerOptions{Level: opts.Level}
	console := slog.NewTextHandler(opts.Writer, handlerOpts)
	if opts.SeqURL == "" {
		return slog.New(console), func() {}
	}

	flush := opts.FlushInterval
	if flush <= 0 {
		flush = 2 * time.Second
	}
	_, seqHandler := slogseq.NewLogger(
		opts.SeqURL,
		slogseq.WithBatchSize(50),
		slogseq.WithFlushInterval(flush),
		slogseq.WithHandlerOptions(handlerOpts),
	)
	if seqHandler == nil {
		return slog.New(console), func() {}
	}

	logger := slog.New(Fanout(console, seqHandler))
	return logger, func() { seqHandler.Close() }
}
