package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestNewJSONIncludesServiceField(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "debug", "json")
	log.Info().Str("component", "test").Msg("hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "tara", line["service"])
	require.Equal(t, "hello", line["message"])
	require.Equal(t, "test", line["component"])
}

func TestNewUnknownLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	_ = New(&buf, "chatty", "json")
	require.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}

func TestGinWriterTagsComponent(t *testing.T) {
	var buf bytes.Buffer
	w := GinWriter(New(&buf, "info", "json"))

	_, err := w.Write([]byte("[GIN-debug] GET /health\n"))
	require.NoError(t, err)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "gin", line["component"])
	require.Equal(t, "[GIN-debug] GET /health", line["message"])
}
