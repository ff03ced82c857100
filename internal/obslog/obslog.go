// Package obslog configures the process's structured logger: a JSON slog
// handler with the field renames the wider codebase's log shippers expect
// (timestamp/severity/message), plus a custom below-Debug level for the
// TraceXrc priority. No code in this repository logs at that level; the
// oracle driver logs at Debug, Info and Warn.
// Grounded on observability/logging/logging.go.
package obslog

import (
	"log"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LevelTraceXrc is one tier below Debug: a distinct /logs priority, and
// the handler's minimum level, so records at it are written when logged.
const LevelTraceXrc = slog.Level(-8)

// Setup configures the default slog logger to emit structured JSON to
// stdout and, when logPath is non-empty, to a rotating file backing the
// /logs HTTP endpoint. All log lines carry the service name and
// environment when provided.
func Setup(service, env, logPath string) *slog.Logger {
	opts := &slog.HandlerOptions{
		AddSource: false,
		Level:     LevelTraceXrc,
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			switch attr.Key {
			case slog.TimeKey:
				return slog.Attr{Key: "timestamp", Value: attr.Value}
			case slog.LevelKey:
				return slog.String("severity", levelName(attr.Value))
			case slog.MessageKey:
				return slog.Attr{Key: "message", Value: attr.Value}
			}
			return attr
		},
	}

	handler := slog.NewJSONHandler(logWriter(logPath), opts)

	attrs := []slog.Attr{
		slog.String("service", strings.TrimSpace(service)),
	}
	if env = strings.TrimSpace(env); env != "" {
		attrs = append(attrs, slog.String("env", env))
	}

	withArgs := make([]any, 0, len(attrs))
	for _, attr := range attrs {
		withArgs = append(withArgs, attr)
	}

	base := slog.New(handler).With(withArgs...)
	slog.SetDefault(base)

	stdBridge := slog.NewLogLogger(handler.WithAttrs(attrs), slog.LevelInfo)
	stdBridge.SetFlags(0)
	log.SetOutput(stdBridge.Writer())
	log.SetFlags(0)
	log.SetPrefix("")

	return base
}

func levelName(v slog.Value) string {
	lvl := v.Any().(slog.Level)
	if lvl == LevelTraceXrc {
		return "TRACE_XRC"
	}
	return strings.ToUpper(lvl.String())
}

// logWriter returns stdout alone when logPath is empty, or a writer that
// fans out to both stdout and a rotating file when it isn't — the
// rotating file is what httpapi's /logs endpoint reads back.
func logWriter(logPath string) *multiWriter {
	w := &multiWriter{targets: []writeCloser{stdoutWriter{}}}
	if strings.TrimSpace(logPath) != "" {
		w.targets = append(w.targets, &lumberjack.Logger{
			Filename:   logPath,
			MaxSize:    50,
			MaxBackups: 5,
			MaxAge:     14,
			Compress:   true,
		})
	}
	return w
}

type writeCloser interface {
	Write(p []byte) (int, error)
}

type stdoutWriter struct{}

func (stdoutWriter) Write(p []byte) (int, error) { return os.Stdout.Write(p) }

// multiWriter fans writes out to every configured target (stdout plus a
// rotating file) without pulling in io.MultiWriter's short-write
// semantics — every target is attempted even if one errors.
type multiWriter struct {
	targets []writeCloser
}

func (m *multiWriter) Write(p []byte) (int, error) {
	var firstErr error
	for _, t := range m.targets {
		if _, err := t.Write(p); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return len(p), firstErr
}
