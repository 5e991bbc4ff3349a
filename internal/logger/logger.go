package logger

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"example.com/kawaii/v2/internal/config"
)

const timestampFormat = "2006-01-02T15:04:05.000Z"

// LogFields carries structured key/value context for a log entry.
type LogFields map[string]interface{}

// Logger writes the error log and the access log.
type Logger struct {
	errorLog  zerolog.Logger
	accessLog *zerolog.Logger
	errorOut  *targetWriter
	accessOut *targetWriter

	realIPHeader string
	proxies      trustedProxies
}

// NewLogger builds a Logger from a defaulted logging configuration.
func NewLogger(cfg *config.LoggingConfig) (*Logger, error) {
	if cfg == nil {
		return nil, fmt.Errorf("logging configuration cannot be nil")
	}

	errTarget, errFormat := "stderr", config.LogFormatJSON
	if cfg.ErrorLog != nil {
		if cfg.ErrorLog.Target != nil {
			errTarget = *cfg.ErrorLog.Target
		}
		if cfg.ErrorLog.Format != "" {
			errFormat = cfg.ErrorLog.Format
		}
	}
	errorOut, err := openTarget(errTarget)
	if err != nil {
		return nil, fmt.Errorf("failed to open error log: %w", err)
	}

	l := &Logger{
		errorLog: newZerolog(errorOut, errFormat).Level(zerologLevel(cfg.LogLevel)),
		errorOut: errorOut,
	}

	al := cfg.AccessLog
	if al == nil || (al.Enabled != nil && !*al.Enabled) {
		return l, nil
	}

	proxies, err := parseTrustedProxies(al.TrustedProxies)
	if err != nil {
		_ = errorOut.close()
		return nil, fmt.Errorf("failed to parse trusted proxies for access log: %w", err)
	}
	accessTarget := "stdout"
	if al.Target != nil {
		accessTarget = *al.Target
	}
	accessOut, err := openTarget(accessTarget)
	if err != nil {
		_ = errorOut.close()
		return nil, fmt.Errorf("failed to open access log: %w", err)
	}
	accessLog := newZerolog(accessOut, al.Format)

	l.accessLog = &accessLog
	l.accessOut = accessOut
	l.proxies = proxies
	if al.RealIPHeader != nil {
		l.realIPHeader = *al.RealIPHeader
	}
	return l, nil
}

// NewDiscardLogger returns a Logger that drops everything. Useful in tests.
func NewDiscardLogger() *Logger {
	return &Logger{errorLog: zerolog.Nop()}
}

// NewWriterLogger returns a Logger whose error and access entries are written
// as JSON lines to errW and accessW. A nil accessW disables access logging.
func NewWriterLogger(level config.LogLevel, errW, accessW io.Writer) *Logger {
	l := &Logger{
		errorLog:     zerolog.New(errW).Level(zerologLevel(level)),
		realIPHeader: "X-Forwarded-For",
	}
	if accessW != nil {
		al := zerolog.New(accessW)
		l.accessLog = &al
	}
	return l
}

func newZerolog(w io.Writer, format string) zerolog.Logger {
	if format == config.LogFormatConsole {
		w = zerolog.ConsoleWriter{Out: w, NoColor: true, TimeFormat: timestampFormat}
	}
	return zerolog.New(w)
}

func zerologLevel(level config.LogLevel) zerolog.Level {
	switch level {
	case config.LogLevelDebug:
		return zerolog.DebugLevel
	case config.LogLevelWarning:
		return zerolog.WarnLevel
	case config.LogLevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (l *Logger) log(e *zerolog.Event, msg string, fields []LogFields) {
	if e == nil {
		return
	}
	e = e.Str("ts", time.Now().UTC().Format(timestampFormat))
	for _, f := range fields {
		e = e.Fields(map[string]interface{}(f))
	}
	e.Msg(msg)
}

func (l *Logger) Debug(msg string, fields ...LogFields) { l.log(l.errorLog.Debug(), msg, fields) }
func (l *Logger) Info(msg string, fields ...LogFields)  { l.log(l.errorLog.Info(), msg, fields) }
func (l *Logger) Warn(msg string, fields ...LogFields)  { l.log(l.errorLog.Warn(), msg, fields) }
func (l *Logger) Error(msg string, fields ...LogFields) { l.log(l.errorLog.Error(), msg, fields) }

// AccessEnabled reports whether access entries are written.
func (l *Logger) AccessEnabled() bool { return l.accessLog != nil }

// Access writes one access log entry for a completed request.
func (l *Logger) Access(req *http.Request, requestID string, status int, respBytes int64, duration time.Duration) {
	if l.accessLog == nil {
		return
	}
	remotePort := "0"
	if _, port, err := net.SplitHostPort(req.RemoteAddr); err == nil {
		remotePort = port
	}

	e := l.accessLog.Log().
		Str("ts", time.Now().UTC().Format(timestampFormat)).
		Str("request_id", requestID).
		Str("remote_addr", realClientIP(req.RemoteAddr, req.Header, l.realIPHeader, l.proxies)).
		Str("remote_port", remotePort).
		Str("protocol", req.Proto).
		Str("method", req.Method).
		Str("uri", req.RequestURI).
		Int("status", status).
		Int64("resp_bytes", respBytes).
		Str("resp_size", humanize.Bytes(uint64(max(respBytes, 0)))).
		Int64("duration_ms", duration.Milliseconds())
	if ua := req.UserAgent(); ua != "" {
		e = e.Str("user_agent", ua)
	}
	if ref := req.Referer(); ref != "" {
		e = e.Str("referer", ref)
	}
	e.Send()
}

// ReopenLogFiles closes and reopens file-backed targets. Standard streams are left alone.
func (l *Logger) ReopenLogFiles() error {
	var errs []error
	for _, tw := range []*targetWriter{l.errorOut, l.accessOut} {
		if tw == nil {
			continue
		}
		if err := tw.reopen(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// CloseLogFiles closes file-backed targets. Later writes are discarded.
func (l *Logger) CloseLogFiles() {
	for _, tw := range []*targetWriter{l.accessOut, l.errorOut} {
		if tw != nil {
			_ = tw.close()
		}
	}
}
