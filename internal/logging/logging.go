// Package logging provides the observability handle used by the agent
// worker. Unlike the teacher's package-level zerolog singleton, the handle
// here is constructed explicitly and threaded through the worker and
// engine. It wraps zerolog for structured output and keeps a bounded ring
// buffer of recent records for crash dumps.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Level is a {off, error, warn, info, debug, trace} verbosity scale.
type Level int

const (
	LevelOff Level = iota
	LevelError
	LevelWarn
	LevelInfo
	LevelDebug
	LevelTrace
)

// ParseLevel parses a level string (case-insensitive); unrecognized values
// and the empty string both fall back to LevelInfo, matching
// SMITHERS_DEBUG_LEVEL's optional nature.
func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "off":
		return LevelOff
	case "error":
		return LevelError
	case "warn", "warning":
		return LevelWarn
	case "debug":
		return LevelDebug
	case "trace":
		return LevelTrace
	default:
		return LevelInfo
	}
}

func (l Level) zerolog() zerolog.Level {
	switch l {
	case LevelOff:
		return zerolog.Disabled
	case LevelError:
		return zerolog.ErrorLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelTrace:
		return zerolog.TraceLevel
	default:
		return zerolog.InfoLevel
	}
}

// Record is one ring-buffer entry.
type Record struct {
	TSMillis  int64
	Level     string
	TraceID   string
	SpanID    string
	EventType string
	Src       string
	Msg       string
}

// Handle is the observability surface passed to the worker and engine. A
// Handle is safe for concurrent use.
type Handle struct {
	logger zerolog.Logger
	level  Level

	mu   sync.Mutex
	ring []Record
	head int
	size int
	cap  int
}

// Config configures a new Handle.
type Config struct {
	Level    Level
	Output   io.Writer
	RingSize int
}

// DefaultConfig returns a handle configuration writing to stderr at info
// level with a 512-entry ring buffer.
func DefaultConfig() Config {
	return Config{Level: LevelInfo, Output: os.Stderr, RingSize: 512}
}

// New constructs an observability handle. No package-level state is
// touched; every caller (worker, engine, tests) owns its own Handle.
func New(cfg Config) *Handle {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	if cfg.RingSize <= 0 {
		cfg.RingSize = 512
	}
	logger := zerolog.New(cfg.Output).Level(cfg.Level.zerolog()).With().Timestamp().Logger()
	return &Handle{
		logger: logger,
		level:  cfg.Level,
		ring:   make([]Record, cfg.RingSize),
		cap:    cfg.RingSize,
	}
}

// Nop returns a handle that discards everything; useful in tests.
func Nop() *Handle {
	return New(Config{Level: LevelOff, Output: io.Discard, RingSize: 16})
}

// Span groups a set of events under a trace/span pair: one agent run,
// bracketing its streaming/tools/continuing phases.
type Span struct {
	h       *Handle
	traceID string
	spanID  string
}

// WithSpan returns a Span bound to the given trace and span identifiers.
func (h *Handle) WithSpan(traceID, spanID string) *Span {
	return &Span{h: h, traceID: traceID, spanID: spanID}
}

// Event emits one structured record at the given level.
func (s *Span) Event(level Level, eventType, src, msg string) {
	s.h.record(level, s.traceID, s.spanID, eventType, src, msg)
}

func (s *Span) Info(eventType, src, msg string)  { s.Event(LevelInfo, eventType, src, msg) }
func (s *Span) Warn(eventType, src, msg string)  { s.Event(LevelWarn, eventType, src, msg) }
func (s *Span) Error(eventType, src, msg string) { s.Event(LevelError, eventType, src, msg) }
func (s *Span) Debug(eventType, src, msg string) { s.Event(LevelDebug, eventType, src, msg) }
func (s *Span) Trace(eventType, src, msg string) { s.Event(LevelTrace, eventType, src, msg) }

func (h *Handle) record(level Level, traceID, spanID, eventType, src, msg string) {
	if h.level == LevelOff || level > h.level {
		return
	}
	now := time.Now()

	var ev *zerolog.Event
	switch level {
	case LevelError:
		ev = h.logger.Error()
	case LevelWarn:
		ev = h.logger.Warn()
	case LevelDebug:
		ev = h.logger.Debug()
	case LevelTrace:
		ev = h.logger.Trace()
	case LevelOff:
		ev = nil
	default:
		ev = h.logger.Info()
	}
	if ev != nil {
		ev.Str("trace_id", traceID).Str("span_id", spanID).Str("event_type", eventType).Str("src", src).Msg(msg)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.ring[h.head] = Record{
		TSMillis:  now.UnixMilli(),
		Level:     levelName(level),
		TraceID:   traceID,
		SpanID:    spanID,
		EventType: eventType,
		Src:       src,
		Msg:       msg,
	}
	h.head = (h.head + 1) % h.cap
	if h.size < h.cap {
		h.size++
	}
}

func levelName(l Level) string {
	switch l {
	case LevelOff:
		return "off"
	case LevelError:
		return "error"
	case LevelWarn:
		return "warn"
	case LevelDebug:
		return "debug"
	case LevelTrace:
		return "trace"
	default:
		return "info"
	}
}

// Dump returns the last N records in chronological order (oldest first),
// for crash dumps or diagnostics. N<=0 returns everything retained.
func (h *Handle) Dump(n int) []Record {
	h.mu.Lock()
	defer h.mu.Unlock()

	if n <= 0 || n > h.size {
		n = h.size
	}
	out := make([]Record, 0, n)
	start := (h.head - n + h.cap*2) % h.cap
	for i := 0; i < n; i++ {
		out = append(out, h.ring[(start+i)%h.cap])
	}
	return out
}
