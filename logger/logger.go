package logger

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	mu           sync.RWMutex
	globalLogger *zap.Logger
)

// Config describes where logs go and how verbose they are.
type Config struct {
	Level      string // debug, info, warn, error
	OutputPath string // optional rotated file; empty means stdout only
	MaxSize    int    // megabytes
	MaxBackups int
	MaxAge     int // days
	Compress   bool
}

// ParseLevel maps a level name to a zap level, defaulting to info.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// InitLogger builds the process logger: JSON to stdout, and JSON to a
// lumberjack-rotated file when OutputPath is set.
func InitLogger(cfg Config) error {
	level := ParseLevel(cfg.Level)

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.RFC3339TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(os.Stdout), level),
	}

	if cfg.OutputPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.OutputPath), 0755); err != nil {
			return err
		}
		fileWriter := zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.OutputPath,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		})
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), fileWriter, level))
	}

	SetLogger(zap.New(zapcore.NewTee(cores...),
		zap.AddCaller(),
		zap.AddCallerSkip(1), // skip the package-level wrappers
		zap.AddStacktrace(zapcore.ErrorLevel),
	))
	return nil
}

// SetLogger replaces the process logger. Tests use it to capture output.
func SetLogger(l *zap.Logger) {
	mu.Lock()
	globalLogger = l
	mu.Unlock()
}

// L returns the process logger, or a no-op logger before InitLogger.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if globalLogger == nil {
		return zap.NewNop()
	}
	return globalLogger
}

// Sync flushes buffered entries.
func Sync() {
	_ = L().Sync()
}

// Debug 输出调试级别日志
func Debug(msg string, fields ...zap.Field) { L().Debug(msg, fields...) }

// Info 输出信息级别日志
func Info(msg string, fields ...zap.Field) { L().Info(msg, fields...) }

// Warn 输出警告级别日志
func Warn(msg string, fields ...zap.Field) { L().Warn(msg, fields...) }

// Error 输出错误级别日志
func Error(msg string, fields ...zap.Field) { L().Error(msg, fields...) }

// Fatal 输出致命错误级别日志并退出程序
func Fatal(msg string, fields ...zap.Field) {
	L().Fatal(msg, fields...)
}

// 辅助函数，用于创建字段

// String 创建字符串字段
func String(key string, val string) zap.Field { return zap.String(key, val) }

// Strings 创建字符串列表字段
func Strings(key string, val []string) zap.Field { return zap.Strings(key, val) }

// Int 创建整数字段
func Int(key string, val int) zap.Field { return zap.Int(key, val) }

// Int64 创建 64 位整数字段
func Int64(key string, val int64) zap.Field { return zap.Int64(key, val) }

// Bool 创建布尔字段
func Bool(key string, val bool) zap.Field { return zap.Bool(key, val) }

// Any 创建任意类型字段
func Any(key string, val interface{}) zap.Field { return zap.Any(key, val) }

// Duration 创建持续时间字段
func Duration(key string, val time.Duration) zap.Field { return zap.Duration(key, val) }

// ErrorField 创建错误字段
func ErrorField(err error) zap.Field {
	return zap.Error(err)
}
