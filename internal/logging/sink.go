package logging

import (
	"sync"

	"github.com/rs/zerolog"
)

// Sink receives operator-facing progress messages. Delivery is fire-and-forget.
type Sink interface {
	Log(msg string)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(msg string)

// Log implements Sink.
func (f SinkFunc) Log(msg string) { f(msg) }

// Discard drops every message.
var Discard Sink = SinkFunc(func(string) {})

// ZerologSink forwards messages to a zerolog logger at info level.
type ZerologSink struct {
	logger zerolog.Logger
}

// NewZerologSink creates a sink tagged with the site and account it reports on.
func NewZerologSink(logger zerolog.Logger, site, account string) *ZerologSink {
	return &ZerologSink{
		logger: logger.With().Str("site", site).Str("account", account).Logger(),
	}
}

// Log implements Sink.
func (s *ZerologSink) Log(msg string) {
	s.logger.Info().Msg(msg)
}

// Multi fans a message out to several sinks in order.
func Multi(sinks ...Sink) Sink {
	return SinkFunc(func(msg string) {
		for _, s := range sinks {
			if s != nil {
				s.Log(msg)
			}
		}
	})
}

// Recorder keeps every message in arrival order. Safe for concurrent use.
type Recorder struct {
	mu       sync.Mutex
	messages []string
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Log implements Sink.
func (r *Recorder) Log(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
}

// Messages returns a copy of the recorded messages.
func (r *Recorder) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.messages))
	copy(out, r.messages)
	return out
}

// Index returns the position of the first message equal to msg, or -1.
func (r *Recorder) Index(msg string) int {
	for i, m := range r.Messages() {
		if m == msg {
			return i
		}
	}
	return -1
}
