package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/log"
)

func TestSetupRoutesPackageLoggersToSlog(t *testing.T) {
	var buf bytes.Buffer
	tel := Setup(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})))
	t.Cleanup(func() { _ = tel.Shutdown(context.Background()) })

	packageLogger := otelslog.NewLogger("github.com/koscakluka/ema-duet/core/test")
	packageLogger.Warn("presentation failed", "turn_id", 4, "final", true)
	packageLogger.Debug("filtered")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "presentation failed", record["msg"])
	assert.Equal(t, "WARN", record["level"])
	assert.Equal(t, "github.com/koscakluka/ema-duet/core/test", record["scope"])
	assert.EqualValues(t, 4, record["turn_id"])
	assert.Equal(t, true, record["final"])
	assert.NotContains(t, buf.String(), "filtered")
}

func TestSlogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, slogLevel(log.SeverityDebug))
	assert.Equal(t, slog.LevelInfo, slogLevel(log.SeverityInfo))
	assert.Equal(t, slog.LevelWarn, slogLevel(log.SeverityWarn2))
	assert.Equal(t, slog.LevelError, slogLevel(log.SeverityFatal))
}

func TestShutdownOnNilTelemetry(t *testing.T) {
	var tel *Telemetry
	assert.NoError(t, tel.Shutdown(context.Background()))
}
