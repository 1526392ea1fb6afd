// Package audit appends JSON-lines activity records to a local log file and
// answers simple queries over them. Old records are rotated into <file>.old
// after 90 days and dropped after 180.
package audit

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/substantialcattle5/stillsuit/internal/constants"
)

// Level is the severity of a record.
type Level string

const (
	LevelError Level = "ERROR"
	LevelWarn  Level = "WARN"
	LevelInfo  Level = "INFO"
	LevelDebug Level = "DEBUG"
)

// Activity types
const (
	ActivityBackup  = "backup"
	ActivityRestore = "restore"
	ActivityRecover = "recover"
	ActivityFile    = "file"
)

// Statuses
const (
	StatusStarted = "started"
	StatusSuccess = "success"
	StatusFailure = "failure"
)

const (
	rotateAfter = 90 * 24 * time.Hour
	purgeAfter  = 180 * 24 * time.Hour
	oldSuffix   = ".old"
)

// Logger writes audit records. The zero value and a nil *Logger discard everything.
type Logger struct {
	mu   sync.Mutex
	path string
	file *os.File
	zl   *zap.Logger
}

// Open prepares the audit log at path. When enabled is false the returned
// logger is a no-op and nothing is touched on disk.
func Open(path string, enabled bool) (*Logger, error) {
	if !enabled || path == "" {
		return &Logger{}, nil
	}
	return openAt(path, time.Now())
}

func openAt(path string, now time.Time) (*Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), constants.StandardDirPerms); err != nil {
		return nil, fmt.Errorf("error creating audit log directory: %w", err)
	}
	if err := rotate(path, now); err != nil {
		return nil, fmt.Errorf("error initializing audit log: %w", err)
	}

	// #nosec G304 - path comes from configuration
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, constants.SecureFilePerms)
	if err != nil {
		return nil, fmt.Errorf("error opening audit log: %w", err)
	}

	encCfg := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		MessageKey:     "details",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.RFC3339TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(f), zapcore.DebugLevel)

	return &Logger{path: path, file: f, zl: zap.New(core)}, nil
}

// Enabled reports whether records are written anywhere.
func (l *Logger) Enabled() bool {
	return l != nil && l.zl != nil
}

// Path returns the log file location, empty when disabled.
func (l *Logger) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Log appends one record.
func (l *Logger) Log(activityType, status, details string, level Level) {
	if !l.Enabled() {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	fields := []zap.Field{zap.String("activityType", activityType), zap.String("status", status)}
	switch level {
	case LevelError:
		l.zl.Error(details, fields...)
	case LevelWarn:
		l.zl.Warn(details, fields...)
	case LevelDebug:
		l.zl.Debug(details, fields...)
	default:
		l.zl.Info(details, fields...)
	}
}

// Close flushes and closes the log file.
func (l *Logger) Close() error {
	if !l.Enabled() {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	_ = l.zl.Sync()
	err := l.file.Close()
	l.zl = nil
	return err
}

// rotate moves a live log whose first record is older than 90 days into
// path.old and removes path.old once its first record is older than 180 days.
func rotate(path string, now time.Time) error {
	first, ok, err := firstTimestamp(path)
	if err != nil {
		return err
	}
	if ok && now.Sub(first) > rotateAfter {
		if err := appendTo(path+oldSuffix, path); err != nil {
			return err
		}
		if err := os.Truncate(path, 0); err != nil {
			return err
		}
	}

	first, ok, err = firstTimestamp(path + oldSuffix)
	if err != nil {
		return err
	}
	if ok && now.Sub(first) > purgeAfter {
		return os.Remove(path + oldSuffix)
	}
	return nil
}

func firstTimestamp(path string) (time.Time, bool, error) {
	// #nosec G304 - path comes from configuration
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil || rec.Timestamp.IsZero() {
			continue
		}
		return rec.Timestamp, true, nil
	}
	return time.Time{}, false, sc.Err()
}

func appendTo(dst, src string) error {
	// #nosec G304 - paths come from configuration
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	// #nosec G304 - paths come from configuration
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_APPEND|os.O_WRONLY, constants.SecureFilePerms)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
