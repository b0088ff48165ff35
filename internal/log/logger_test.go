package log

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Level: "debug", Output: &buf, Service: "test", Version: "1.2.3"})
	t.Cleanup(func() { Configure(Config{}) })

	logger := WithComponent("registrar")
	logger.Info().Str("event", "registrar.synced").Msg("ok")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "registrar", entry["component"])
	assert.Equal(t, "test", entry["service"])
	assert.Equal(t, "1.2.3", entry["version"])
	assert.Equal(t, "registrar.synced", entry["event"])
	assert.Equal(t, "info", entry["level"])
}

func TestConfigure_Level(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Level: "warn", Output: &buf})
	t.Cleanup(func() { Configure(Config{}) })

	base := Base()
	base.Info().Msg("hidden")
	assert.Zero(t, buf.Len())
	base.Warn().Msg("shown")
	assert.NotZero(t, buf.Len())
}

func TestWithContext(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	plain := WithContext(context.Background(), logger)
	plain.Info().Msg("plain")
	assert.NotContains(t, buf.String(), "invocation_id")

	buf.Reset()
	ctx := ContextWithInvocationID(context.Background(), "inv-1")
	tagged := WithContext(ctx, logger)
	tagged.Info().Msg("tagged")
	assert.Contains(t, buf.String(), `"invocation_id":"inv-1"`)
	assert.Equal(t, "inv-1", InvocationIDFromContext(ctx))
}
