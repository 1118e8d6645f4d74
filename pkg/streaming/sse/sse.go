package sse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	gferrors "github.com/vnykmshr/goflux/pkg/common/errors"
	"github.com/vnykmshr/goflux/pkg/metrics"
	"github.com/vnykmshr/goflux/pkg/streaming/reactive"
)

// ErrStreamingUnsupported is returned when the response cannot be flushed.
var ErrStreamingUnsupported = errors.New("sse: response writer does not support flushing")

type options struct {
	stream  string
	event   string
	ids     bool
	metrics *metrics.Registry
}

// Option configures Write.
type Option func(*options)

// WithStream names the stream in metrics and logs. Defaults to "default".
func WithStream(name string) Option {
	return func(o *options) { o.stream = name }
}

// WithEvent sets the event field of every message.
func WithEvent(event string) Option {
	return func(o *options) { o.event = event }
}

// WithIDs numbers messages from 1 in the id field.
func WithIDs() Option {
	return func(o *options) { o.ids = true }
}

// WithMetrics records open streams and written events in reg instead of
// metrics.DefaultRegistry.
func WithMetrics(reg *metrics.Registry) Option {
	return func(o *options) { o.metrics = reg }
}

// Write streams src to w until src terminates, ctx is cancelled, or a write
// fails. Strings and byte slices are sent as-is, fmt.Stringers through
// String, anything else as JSON. A failure of src is sent as an "error"
// event and returned. Write does not touch w after it returns.
func Write[T any](ctx context.Context, w http.ResponseWriter, src reactive.Many[T], opts ...Option) error {
	o := options{stream: "default", metrics: metrics.DefaultRegistry}
	for _, opt := range opts {
		opt(&o)
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		return ErrStreamingUnsupported
	}
	log := zerolog.Ctx(ctx).With().Str("stream", o.stream).Logger()

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	o.metrics.EventStreams.WithLabelValues(o.stream).Inc()
	defer o.metrics.EventStreams.WithLabelValues(o.stream).Dec()

	s := &sink[T]{w: w, flusher: flusher, opts: &o, done: make(chan struct{})}
	sub := src.Subscribe(ctx, s)

	select {
	case <-s.done:
	case <-ctx.Done():
		sub.Cancel()
	}
	err := s.close(ctx.Err())

	switch {
	case err == nil:
		log.Debug().Int64("events", s.written).Msg("event stream completed")
	case isContextErr(err):
		log.Debug().Int64("events", s.written).Msg("event stream closed by client")
	default:
		log.Warn().Err(err).Int64("events", s.written).Msg("event stream failed")
	}
	return err
}

type sink[T any] struct {
	w       io.Writer
	flusher http.Flusher
	opts    *options

	mu      sync.Mutex
	sub     reactive.Subscription
	closed  bool
	err     error
	written int64
	once    sync.Once
	done    chan struct{}
}

func (s *sink[T]) OnSubscribe(sub reactive.Subscription) {
	s.mu.Lock()
	s.sub = sub
	s.mu.Unlock()
	sub.Request(1)
}

func (s *sink[T]) OnNext(v T) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	err := s.send(v)
	sub := s.sub
	s.mu.Unlock()

	if err != nil {
		s.finish(gferrors.NewOperationError("sse", "write", err))
		sub.Cancel()
		return
	}
	sub.Request(1)
}

func (s *sink[T]) OnError(err error) {
	s.mu.Lock()
	if !s.closed && !isContextErr(err) {
		_ = s.writeMessage("error", "", err.Error())
	}
	s.mu.Unlock()
	s.finish(err)
}

func (s *sink[T]) OnComplete() { s.finish(nil) }

// send writes one message. Callers hold mu.
func (s *sink[T]) send(v T) error {
	data, err := encode(v)
	if err != nil {
		return err
	}
	id := ""
	if s.opts.ids {
		id = fmt.Sprint(s.written + 1)
	}
	if err := s.writeMessage(s.opts.event, id, data); err != nil {
		return err
	}
	s.written++
	s.opts.metrics.EventsWritten.WithLabelValues(s.opts.stream).Inc()
	return nil
}

func (s *sink[T]) writeMessage(event, id, data string) error {
	var b strings.Builder
	if event != "" {
		b.WriteString("event: " + event + "\n")
	}
	if id != "" {
		b.WriteString("id: " + id + "\n")
	}
	for _, line := range strings.Split(data, "\n") {
		b.WriteString("data: " + line + "\n")
	}
	b.WriteString("\n")

	if _, err := io.WriteString(s.w, b.String()); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *sink[T]) finish(err error) {
	s.once.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.done)
	})
}

// close stops further writes and reports the outcome.
func (s *sink[T]) close(cause error) error {
	s.finish(cause)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return s.err
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func encode(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	case fmt.Stringer:
		return x.String(), nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
