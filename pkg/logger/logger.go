package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Field aliases for zap fields
type Field = zapcore.Field

// Field constructors re-exported so callers only import this package
var (
	String   = zap.String
	Int      = zap.Int
	Int64    = zap.Int64
	Bool     = zap.Bool
	Time     = zap.Time
	Duration = zap.Duration
	Error    = zap.Error
	Any      = zap.Any
)

// Airport tags an entry with an ICAO airport code
func Airport(code string) Field {
	return zap.String("airport", code)
}

// Stage tags an entry with a pipeline stage name
func Stage(stage string) Field {
	return zap.String("stage", stage)
}

// Size logs a byte count in human-readable form, e.g. "1.4 MB"
func Size(key string, n int64) Field {
	if n < 0 {
		n = 0
	}
	return zap.String(key, humanize.Bytes(uint64(n)))
}

// nameWidth is the column width of logger names in console output
const nameWidth = 15

// Logger is a wrapper around zap.Logger
type Logger struct {
	*zap.Logger
}

// Config represents logger configuration
type Config struct {
	Level  string    // debug, info, warn, error
	Format string    // json, console
	Output io.Writer // defaults to stdout
}

var levels = map[string]zapcore.Level{
	"":        zapcore.InfoLevel,
	"debug":   zapcore.DebugLevel,
	"info":    zapcore.InfoLevel,
	"warn":    zapcore.WarnLevel,
	"warning": zapcore.WarnLevel,
	"error":   zapcore.ErrorLevel,
}

// ANSI colours of the console level column
var levelColors = map[zapcore.Level]string{
	zapcore.DebugLevel: "\033[1;37m",
	zapcore.InfoLevel:  "\033[1;36m",
	zapcore.WarnLevel:  "\033[1;33m",
	zapcore.ErrorLevel: "\033[1;31m",
}

// New creates a new logger with the given configuration
func New(config Config) (*Logger, error) {
	level, ok := levels[strings.ToLower(strings.TrimSpace(config.Level))]
	if !ok {
		return nil, fmt.Errorf("unsupported log level: %s", config.Level)
	}

	encoder, err := newEncoder(config.Format, level == zapcore.DebugLevel)
	if err != nil {
		return nil, err
	}

	var output io.Writer = os.Stdout
	if config.Output != nil {
		output = config.Output
	}

	opts := []zap.Option{zap.AddStacktrace(zapcore.ErrorLevel)}
	if level == zapcore.DebugLevel {
		opts = append(opts, zap.AddCaller())
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(output), level)
	return &Logger{Logger: zap.New(core, opts...)}, nil
}

// newEncoder builds the entry encoder. Caller info is only kept at debug
// level.
func newEncoder(format string, withCaller bool) (zapcore.Encoder, error) {
	cfg := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		FunctionKey:    zapcore.OmitKey,
		CallerKey:      zapcore.OmitKey,
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}
	if withCaller {
		cfg.CallerKey = "caller"
		cfg.EncodeCaller = zapcore.ShortCallerEncoder
	}

	switch format {
	case "json":
		cfg.EncodeLevel = zapcore.LowercaseLevelEncoder
		cfg.EncodeName = zapcore.FullNameEncoder
		return zapcore.NewJSONEncoder(cfg), nil
	case "console":
		cfg.EncodeLevel = colorLevel
		cfg.EncodeName = func(name string, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendString(fitName(name))
		}
		return zapcore.NewConsoleEncoder(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported log format: %s", format)
	}
}

func colorLevel(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	color, ok := levelColors[level]
	if !ok {
		enc.AppendString(level.String())
		return
	}
	enc.AppendString(color + level.String() + "\033[0m")
}

// fitName pads or cuts the last component of a logger name to nameWidth
func fitName(loggerName string) string {
	name := loggerName[strings.LastIndex(loggerName, ".")+1:]
	if len(name) > nameWidth {
		return name[:nameWidth]
	}
	return name + strings.Repeat(" ", nameWidth-len(name))
}

// NewNop returns a logger that discards everything
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// With returns a logger with the given fields
func (l *Logger) With(fields ...Field) *Logger {
	return &Logger{Logger: l.Logger.With(fields...)}
}

// Named returns a logger with the given name
func (l *Logger) Named(name string) *Logger {
	return &Logger{Logger: l.Logger.Named(name)}
}

// WithRequestID returns a logger with the request ID field
func (l *Logger) WithRequestID(requestID string) *Logger {
	return l.With(zap.String("request_id", requestID))
}

// WithSession returns a logger tagged with a pipeline session
func (l *Logger) WithSession(sessionID, airportCode string) *Logger {
	return l.With(zap.String("session_id", sessionID), Airport(airportCode))
}
