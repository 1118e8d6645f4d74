package logger

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Standard field keys.
const (
	FieldComponent = "component"
	FieldPipeline  = "pipeline"
	FieldScheduler = "scheduler"
	FieldRequestID = "request_id"
)

// New builds a zerolog.Logger from cfg, tagged with component.
func New(cfg Config, component string) zerolog.Logger {
	return NewWithWriter(cfg, component, outputWriter(cfg.Output))
}

// NewWithWriter is New writing to w instead of cfg.Output.
func NewWithWriter(cfg Config, component string, w io.Writer) zerolog.Logger {
	cfg.ApplyDefaults()

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	if strings.EqualFold(cfg.Format, "console") {
		w = zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: "15:04:05.000",
			NoColor:    cfg.NoColor,
		}
	}

	zc := zerolog.New(w).Level(level).With()
	if cfg.Timestamp {
		zc = zc.Timestamp()
	}
	if component != "" {
		zc = zc.Str(FieldComponent, component)
	}
	return zc.Logger()
}

// Nop returns a disabled logger.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}

// WithContext attaches log to ctx. The engine picks it up with zerolog.Ctx.
func WithContext(ctx context.Context, log zerolog.Logger) context.Context {
	return log.WithContext(ctx)
}

// FromContext returns the logger attached to ctx, or a disabled one.
func FromContext(ctx context.Context) *zerolog.Logger {
	return zerolog.Ctx(ctx)
}

// WithPipeline returns a child of the context logger tagged with a pipeline
// name, attached to the returned context.
func WithPipeline(ctx context.Context, name string) context.Context {
	l := zerolog.Ctx(ctx).With().Str(FieldPipeline, name).Logger()
	return l.WithContext(ctx)
}

func outputWriter(output string) io.Writer {
	switch strings.ToLower(output) {
	case "stdout":
		return os.Stdout
	default:
		return os.Stderr
	}
}
