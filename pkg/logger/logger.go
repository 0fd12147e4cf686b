// Package logger provides the process-wide logging context: console output
// for operators plus rotated JSON files for later analysis. Errors go to a
// separate file so the trading log stays scannable.
package logger

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls where and how much the logger writes.
type Options struct {
	Dir        string // log directory, created if missing
	Console    bool   // mirror Info+ to stdout
	Debug      bool   // lower the file core to Debug
	MaxBackups int    // rotated files to keep per log
}

// Logger wraps a zap logger. Construct one in main and inject it; packages
// never log through globals.
type Logger struct {
	z *zap.Logger
}

// Pair builds a structured field. Kept as a tiny alias so call sites read
// uniformly regardless of value type.
func Pair(key string, value interface{}) zap.Field {
	return zap.Any(key, value)
}

// New builds the combined console/file logger. The file cores rotate via
// lumberjack; trading.log excludes Error and above, error.log contains only
// Error and above.
func New(opts Options) (*Logger, error) {
	if opts.Dir == "" {
		opts.Dir = "logs"
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, err
	}
	if opts.MaxBackups == 0 {
		opts.MaxBackups = 30
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "timestamp"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	jsonEnc := zapcore.NewJSONEncoder(encCfg)

	fileLevel := zapcore.InfoLevel
	if opts.Debug {
		fileLevel = zapcore.DebugLevel
	}

	tradingOut := zapcore.AddSync(&lumberjack.Logger{
		Filename:   filepath.Join(opts.Dir, "trading.log"),
		MaxSize:    50, // MB
		MaxBackups: opts.MaxBackups,
		Compress:   true,
	})
	errorOut := zapcore.AddSync(&lumberjack.Logger{
		Filename:   filepath.Join(opts.Dir, "error.log"),
		MaxSize:    50,
		MaxBackups: 90,
		Compress:   true,
	})

	cores := []zapcore.Core{
		zapcore.NewCore(jsonEnc, tradingOut, zap.LevelEnablerFunc(func(l zapcore.Level) bool {
			return l >= fileLevel && l < zapcore.ErrorLevel
		})),
		zapcore.NewCore(jsonEnc, errorOut, zapcore.ErrorLevel),
	}
	if opts.Console {
		conCfg := zap.NewDevelopmentEncoderConfig()
		conCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(conCfg),
			zapcore.AddSync(os.Stdout),
			zapcore.InfoLevel,
		))
	}

	return &Logger{z: zap.New(zapcore.NewTee(cores...))}, nil
}

// NewNop returns a logger that discards everything. Used in tests.
func NewNop() *Logger {
	return &Logger{z: zap.NewNop()}
}

// Named returns a child logger tagged with the component name.
func (l *Logger) Named(name string) *Logger {
	return &Logger{z: l.z.Named(name)}
}

func (l *Logger) Debug(msg string, fields ...zap.Field) { l.z.Debug(msg, fields...) }
func (l *Logger) Info(msg string, fields ...zap.Field)  { l.z.Info(msg, fields...) }
func (l *Logger) Warn(msg string, fields ...zap.Field)  { l.z.Warn(msg, fields...) }
func (l *Logger) Error(msg string, fields ...zap.Field) { l.z.Error(msg, fields...) }

// Sync flushes buffered entries. Called on shutdown.
func (l *Logger) Sync() {
	_ = l.z.Sync()
}
