package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config содержит параметры logger'а checkout сервиса
type Config struct {
	// ServiceName попадает в поле service каждой записи
	ServiceName string
	// Env окружение (local/docker), от него зависят дефолты
	Env string
	// Level debug/info/warn/error, по умолчанию info
	Level string
	// Format "json" или "console"; local=console, docker=json
	Format string
	// Output куда писать логи, по умолчанию os.Stderr (в тестах подменяется буфером)
	Output io.Writer
}

// New собирает zap.Logger по конфигурации.
// К каждой записи добавляются поля service и env.
func New(cfg Config) (*zap.Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	format := strings.ToLower(cfg.Format)
	if format == "" {
		format = "console"
		if cfg.Env == "docker" {
			format = "json"
		}
	}
	if format != "json" && format != "console" {
		return nil, fmt.Errorf("invalid log format: %s (must be json/console)", cfg.Format)
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.RFC3339NanoTimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var encoder zapcore.Encoder
	if format == "json" {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(out), level)

	// caller нужен только при локальной разработке
	var opts []zap.Option
	if cfg.Env != "docker" {
		opts = append(opts, zap.AddCaller())
	}

	logger := zap.New(core, opts...).With(
		zap.String("service", cfg.ServiceName),
		zap.String("env", cfg.Env),
	)
	return logger, nil
}

func parseLevel(s string) (zapcore.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("invalid log level: %s (must be debug/info/warn/error)", s)
	}
}

// Sync сбрасывает буфер, ошибка вида "sync /dev/stderr: invalid argument" не интересна
func Sync(log *zap.Logger) {
	_ = log.Sync()
}
