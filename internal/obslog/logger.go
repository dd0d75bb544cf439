// Package obslog builds the coordinator's zap loggers: one process-wide
// base logger, per-component children whose minimum level can be set
// higher (quieter) than the base's from the config read at startup, and
// an optional sampler over the base core (the mutation attempt path logs
// one line per Sequoia mutation attempt, which is too much at
// steady-state commit rates). It also bridges log lines to the active
// OpenTelemetry span so a trace and its log lines can be correlated.
package obslog

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// SamplingConfig thins out repeated identical log lines the way
// zap.Config's own Sampling field does: the first First lines in each
// Tick window pass through unsampled, then every Thereafter'th line
// after that.
type SamplingConfig struct {
	Tick       time.Duration `yaml:"tick"`
	First      int           `yaml:"first"`
	Thereafter int           `yaml:"thereafter"`
}

// Config holds all the configuration for the logger.
type Config struct {
	// Level sets the minimum log level (e.g., "debug", "info", "warn", "error").
	Level string `yaml:"level"`
	// Format specifies the log output format ("json" or "console").
	Format string `yaml:"format"`
	// OutputFile specifies the file to write logs to. "stdout" or "stderr"
	// can be used to log to the console.
	OutputFile string `yaml:"output_file"`
	// Sampling, if non-nil, rate-limits repeated identical log lines.
	// The mutation attempt path is the component that needs this: every
	// mutation attempt logs the same shape of line.
	Sampling *SamplingConfig `yaml:"sampling"`
	// ComponentLevels overrides the minimum level for a named component
	// (the string passed to For) above Level. It can only raise the bar,
	// since the underlying core is already built at Level; a component
	// that needs to be quieter than the rest of the process is the
	// common case (e.g. silencing a chatty mutation attempt path in prod
	// while keeping the rest of the daemon at info).
	ComponentLevels map[string]string `yaml:"component_levels"`
}

// New creates a new zap.Logger based on the provided configuration. It's
// designed to be called once at application startup; per-component
// loggers are then derived from it with For.
func New(config Config) (*zap.Logger, error) {
	logLevel := zap.NewAtomicLevel()
	if err := logLevel.UnmarshalText([]byte(config.Level)); err != nil {
		logLevel.SetLevel(zap.InfoLevel)
	}

	writeSyncer, err := getWriteSyncer(config.OutputFile)
	if err != nil {
		return nil, err
	}

	encoder := getEncoder(config.Format)
	var core zapcore.Core = zapcore.NewCore(encoder, writeSyncer, logLevel)
	if s := config.Sampling; s != nil {
		tick := s.Tick
		if tick <= 0 {
			tick = time.Second
		}
		core = zapcore.NewSamplerWithOptions(core, tick, s.First, s.Thereafter)
	}

	logger := zap.New(core, zap.AddCaller()).
		WithOptions(zap.Fields(zap.String("service", "coordinator")))

	return logger, nil
}

// For derives a named child logger for component, raised to
// config.ComponentLevels[component] if that override is stricter than
// base's own level. Every long-lived subsystem (cmd/coordinatord's raft
// bootstrap, internal/mutation's attempt loop, internal/cellfsm's Apply)
// should log through a For-derived logger rather than the bare base, so
// an operator can quiet one noisy component without touching the rest.
func For(base *zap.Logger, config Config, component string) *zap.Logger {
	logger := base.Named(component)
	raw, ok := config.ComponentLevels[component]
	if !ok {
		return logger
	}
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		return logger
	}
	return logger.WithOptions(zap.IncreaseLevel(level))
}

// WithTraceFields appends the active span's trace and span IDs from ctx
// to logger, so a log line and the OpenTelemetry span it happened inside
// can be correlated in whatever backend ingests both. It returns logger
// unchanged if ctx carries no valid span context.
func WithTraceFields(logger *zap.Logger, ctx context.Context) *zap.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return logger
	}
	return logger.With(
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	)
}

// getEncoder selects the log encoder based on the configured format.
func getEncoder(format string) zapcore.Encoder {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	if strings.ToLower(format) == "console" {
		return zapcore.NewConsoleEncoder(encoderConfig)
	}
	return zapcore.NewJSONEncoder(encoderConfig)
}

// getWriteSyncer selects the output destination for the logs.
func getWriteSyncer(outputFile string) (zapcore.WriteSyncer, error) {
	switch strings.ToLower(outputFile) {
	case "stdout", "":
		return zapcore.AddSync(os.Stdout), nil
	case "stderr":
		return zapcore.AddSync(os.Stderr), nil
	default:
		file, err := os.OpenFile(outputFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", outputFile, err)
		}
		return zapcore.AddSync(file), nil
	}
}
