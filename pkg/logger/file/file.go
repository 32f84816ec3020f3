package file

import (
	"github.com/charmbracelet/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// FileLogger implements LoggerInstance by writing JSON lines to a rotating
// log file.
type FileLogger struct {
	out    *lumberjack.Logger
	logger *log.Logger
}

// FileLoggerParams contains configuration for creating a FileLogger.
// MaxSizeMB, MaxBackups and MaxAgeDays fall back to lumberjack defaults
// when zero.
type FileLoggerParams struct {
	Path       string
	Debug      bool
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// NewFileLogger creates a logger that appends to params.Path and rotates
// the file once it grows past MaxSizeMB.
func NewFileLogger(params FileLoggerParams) *FileLogger {
	out := &lumberjack.Logger{
		Filename:   params.Path,
		MaxSize:    params.MaxSizeMB,
		MaxBackups: params.MaxBackups,
		MaxAge:     params.MaxAgeDays,
		Compress:   params.Compress,
	}

	level := log.InfoLevel
	if params.Debug {
		level = log.DebugLevel
	}
	logger := log.NewWithOptions(out, log.Options{
		ReportTimestamp: true,
		Level:           level,
		Formatter:       log.JSONFormatter,
	})

	return &FileLogger{
		out:    out,
		logger: logger,
	}
}

func (f *FileLogger) Log(message string, keyvals ...any) {
	f.logger.Print(message, keyvals...)
}

func (f *FileLogger) Info(message string, keyvals ...any) {
	f.logger.Info(message, keyvals...)
}

func (f *FileLogger) Warn(message string, keyvals ...any) {
	f.logger.Warn(message, keyvals...)
}

func (f *FileLogger) Error(message string, keyvals ...any) {
	f.logger.Error(message, keyvals...)
}

func (f *FileLogger) Debug(message string, keyvals ...any) {
	f.logger.Debug(message, keyvals...)
}

// Fatal writes a message at FATAL level and terminates the program.
func (f *FileLogger) Fatal(message string, keyvals ...any) {
	f.logger.Fatal(message, keyvals...)
}

// Close flushes and closes the underlying log file.
func (f *FileLogger) Close() error {
	return f.out.Close()
}
