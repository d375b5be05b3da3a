// Package telemetry installs the OpenTelemetry log pipeline so the package
// loggers in core end up in the process logger.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// Telemetry owns the installed providers.
type Telemetry struct {
	logs *sdklog.LoggerProvider
}

// Setup routes every otelslog record to l and installs the provider
// globally. Call Shutdown before exit to flush.
func Setup(l *slog.Logger) *Telemetry {
	provider := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewSimpleProcessor(newSlogExporter(l))),
	)
	global.SetLoggerProvider(provider)
	return &Telemetry{logs: provider}
}

func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil || t.logs == nil {
		return nil
	}
	if err := t.logs.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down log provider: %w", err)
	}
	return nil
}

// slogExporter writes OTel log records through a slog logger, adding the
// instrumentation scope as the "scope" attribute.
type slogExporter struct {
	logger *slog.Logger
}

func newSlogExporter(l *slog.Logger) *slogExporter {
	return &slogExporter{logger: l}
}

func (e *slogExporter) Export(ctx context.Context, records []sdklog.Record) error {
	handler := e.logger.Handler()
	for _, record := range records {
		level := slogLevel(record.Severity())
		if !handler.Enabled(ctx, level) {
			continue
		}

		r := slog.NewRecord(record.Timestamp(), level, record.Body().AsString(), 0)
		if scope := record.InstrumentationScope().Name; scope != "" {
			r.AddAttrs(slog.String("scope", scope))
		}
		record.WalkAttributes(func(kv log.KeyValue) bool {
			r.AddAttrs(slogAttr(kv.Key, kv.Value))
			return true
		})

		if err := handler.Handle(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

func (e *slogExporter) Shutdown(context.Context) error   { return nil }
func (e *slogExporter) ForceFlush(context.Context) error { return nil }

func slogLevel(severity log.Severity) slog.Level {
	switch {
	case severity >= log.SeverityError:
		return slog.LevelError
	case severity >= log.SeverityWarn:
		return slog.LevelWarn
	case severity >= log.SeverityInfo:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}

func slogAttr(key string, value log.Value) slog.Attr {
	switch value.Kind() {
	case log.KindString:
		return slog.String(key, value.AsString())
	case log.KindInt64:
		return slog.Int64(key, value.AsInt64())
	case log.KindFloat64:
		return slog.Float64(key, value.AsFloat64())
	case log.KindBool:
		return slog.Bool(key, value.AsBool())
	case log.KindMap:
		attrs := make([]any, 0, len(value.AsMap()))
		for _, kv := range value.AsMap() {
			attrs = append(attrs, slogAttr(kv.Key, kv.Value))
		}
		return slog.Group(key, attrs...)
	default:
		return slog.String(key, value.String())
	}
}
