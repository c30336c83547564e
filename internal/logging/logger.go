// Package logging provides structured logging for the engine using slog.
//
// Usage:
//
//	if err := logging.Init("indexer"); err != nil {
//	    // handle error
//	}
//	defer logging.Close()
//
//	ctx = logging.WithRepository(ctx, repoRoot)
//	logging.Info(ctx, "shadow commit created", slog.String("branch", branch))
package logging

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aimemory/engine/internal/appinfo"
)

// LevelEnvVar is the environment variable that controls log level.
const LevelEnvVar = "AIMEMORY_LOG_LEVEL"

var (
	logger       *slog.Logger
	logFile      *os.File
	logBufWriter *bufio.Writer
	component    string

	mu sync.RWMutex

	levelGetter func() string
)

// SetLevelGetter installs a callback used to read the log level from
// repository settings when AIMEMORY_LOG_LEVEL is unset. Avoids an import
// cycle between logging and config.
func SetLevelGetter(getter func() string) {
	mu.Lock()
	defer mu.Unlock()
	levelGetter = getter
}

// Init initializes the logger for a long-lived component ("indexer",
// "shadow", "rpc"), writing JSON logs to
// ~/.<app>/ai-memory/logs/<component>.log. Falls back to stderr if the log
// file cannot be created.
func Init(componentName string) error {
	mu.Lock()
	defer mu.Unlock()

	if logBufWriter != nil {
		_ = logBufWriter.Flush()
		logBufWriter = nil
	}
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}

	levelStr := os.Getenv(LevelEnvVar)
	if levelStr == "" && levelGetter != nil {
		levelStr = levelGetter()
	}
	level := parseLevel(levelStr)

	logsDir, err := appinfo.LogsDir()
	if err != nil {
		logger = create(os.Stderr, level)
		component = componentName
		return nil
	}

	path := filepath.Join(logsDir, componentName+".log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		logger = create(os.Stderr, level)
		component = componentName
		return nil
	}

	logFile = f
	logBufWriter = bufio.NewWriterSize(f, 8192)
	logger = create(logBufWriter, level)
	component = componentName
	return nil
}

// Close flushes and closes the log file. Safe to call multiple times.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	if logBufWriter != nil {
		_ = logBufWriter.Flush()
		logBufWriter = nil
	}
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
	component = ""
}

func getLogger() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if logger == nil {
		return slog.Default()
	}
	return logger
}

func create(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

func parseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func Debug(ctx context.Context, msg string, attrs ...any) { log(ctx, slog.LevelDebug, msg, attrs...) }
func Info(ctx context.Context, msg string, attrs ...any)  { log(ctx, slog.LevelInfo, msg, attrs...) }
func Warn(ctx context.Context, msg string, attrs ...any)  { log(ctx, slog.LevelWarn, msg, attrs...) }
func Error(ctx context.Context, msg string, attrs ...any) { log(ctx, slog.LevelError, msg, attrs...) }

// LogDuration logs msg with a duration_ms attribute computed from start.
// Intended for defer: `defer logging.LogDuration(ctx, slog.LevelDebug, "scan", time.Now())`.
func LogDuration(ctx context.Context, level slog.Level, msg string, start time.Time, attrs ...any) {
	all := make([]any, 0, len(attrs)+1)
	all = append(all, slog.Int64("duration_ms", time.Since(start).Milliseconds()))
	all = append(all, attrs...)
	log(ctx, level, msg, all...)
}

func log(ctx context.Context, level slog.Level, msg string, attrs ...any) {
	l := getLogger()

	var all []any
	mu.RLock()
	if component != "" {
		all = append(all, slog.String("component", component))
	}
	mu.RUnlock()
	all = append(all, attrsFromContext(ctx)...)
	all = append(all, attrs...)

	l.Log(nil, level, msg, all...) //nolint:staticcheck // attributes already extracted from ctx
}

func attrsFromContext(ctx context.Context) []any {
	if ctx == nil {
		return nil
	}
	var attrs []any
	if v, ok := ctx.Value(repositoryKey).(string); ok && v != "" {
		attrs = append(attrs, slog.String("repository", v))
	}
	if v, ok := ctx.Value(sessionKey).(string); ok && v != "" {
		attrs = append(attrs, slog.String("session_id", v))
	}
	if v, ok := ctx.Value(requestKey).(string); ok && v != "" {
		attrs = append(attrs, slog.String("request_id", v))
	}
	return attrs
}

type ctxKey int

const (
	repositoryKey ctxKey = iota
	sessionKey
	requestKey
)

// WithRepository attaches a repository root to the context for logging.
func WithRepository(ctx context.Context, root string) context.Context {
	return context.WithValue(ctx, repositoryKey, root)
}

// WithSession attaches a conversation session identifier to the context.
func WithSession(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionKey, sessionID)
}

// WithRequest attaches an RPC request identifier to the context.
func WithRequest(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestKey, requestID)
}
