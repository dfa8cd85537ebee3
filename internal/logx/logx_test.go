package logx

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWriterJSONCarriesStaticAttrs(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf, Config{Service: "credctl", Env: "prod", Level: "info"})

	l.Debug("hidden")
	l.Info("shown", "k", "v")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "shown", rec["msg"])
	assert.Equal(t, "credctl", rec["service"])
	assert.Equal(t, "prod", rec["env"])
	assert.Equal(t, "v", rec["k"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("nonsense"))
}

func TestContextRoundTrip(t *testing.T) {
	fallback := Discard()
	assert.Same(t, fallback, From(context.Background(), fallback))

	l := Discard()
	ctx := Into(context.Background(), l)
	assert.Same(t, l, From(ctx, fallback))
}
