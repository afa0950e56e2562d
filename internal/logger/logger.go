package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Logger struct {
	*zerolog.Logger
	component string
}

// Options configures the process-wide log sink.
type Options struct {
	Level string
	Debug bool
	// File enables a rotating file sink next to the console output.
	File string
	// Out replaces stdout as the console destination (tests).
	Out io.Writer
}

var (
	mu     sync.RWMutex
	level  = zerolog.InfoLevel
	out    io.Writer = os.Stdout
	file   io.Writer
	closer io.Closer
)

// Setup installs the sink used by every logger created afterwards.
func Setup(opts Options) error {
	mu.Lock()
	defer mu.Unlock()

	level = parseLevel(opts.Level)
	if opts.Debug {
		level = zerolog.DebugLevel
	}

	out = os.Stdout
	if opts.Out != nil {
		out = opts.Out
	}

	if closer != nil {
		closer.Close()
		closer, file = nil, nil
	}
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		lj := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    50, // megabytes
			MaxBackups: 5,
			MaxAge:     14, // days
			Compress:   true,
		}
		file, closer = lj, lj
	}
	return nil
}

// Close flushes and closes the file sink, if any.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if closer == nil {
		return nil
	}
	err := closer.Close()
	closer, file = nil, nil
	return err
}

// New creates a logger tagged with a component name.
func New(component string) *Logger {
	mu.RLock()
	console, fileSink, lvl := out, file, level
	mu.RUnlock()

	zerolog.TimeFieldFormat = time.RFC3339

	cw := zerolog.ConsoleWriter{
		Out:        console,
		TimeFormat: "15:04:05",
		FormatMessage: func(i interface{}) string {
			return fmt.Sprintf("[%s] %s", component, i)
		},
		FormatLevel: func(i interface{}) string {
			if l, ok := i.(string); ok {
				switch l {
				case "debug":
					return "\033[36m[DEBUG]\033[0m"
				case "info":
					return "\033[34m[INFO]\033[0m"
				case "warn":
					return "\033[33m[WARN]\033[0m"
				case "error":
					return "\033[31m[ERROR]\033[0m"
				case "fatal":
					return "\033[35m[FATAL]\033[0m"
				default:
					return fmt.Sprintf("[%s]", l)
				}
			}
			return "???"
		},
	}

	var w io.Writer = cw
	if fileSink != nil {
		w = zerolog.MultiLevelWriter(cw, fileSink)
	}

	l := zerolog.New(w).Level(lvl).With().Timestamp().Str("component", component).Logger()
	return &Logger{Logger: &l, component: component}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	l := zerolog.Nop()
	return &Logger{Logger: &l, component: "nop"}
}

// With returns a child logger carrying an extra string field.
func (l *Logger) With(key, value string) *Logger {
	child := l.Logger.With().Str(key, value).Logger()
	return &Logger{Logger: &child, component: l.component}
}

func (l *Logger) Component() string { return l.component }

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "", "info":
		return zerolog.InfoLevel
	}
	if lvl, err := zerolog.ParseLevel(s); err == nil {
		return lvl
	}
	return zerolog.InfoLevel
}
