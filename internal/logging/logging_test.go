package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"Error":   slog.LevelError,
		"verbose": slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestAdapter_FiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	log := Adapt(New(&buf, "warn", "text"))

	log.Debugf("debug %d", 1)
	log.Infof("info %d", 2)
	log.Warnf("warn %d", 3)
	log.Errorf("error %d", 4)

	out := buf.String()
	assert.NotContains(t, out, "debug 1")
	assert.NotContains(t, out, "info 2")
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, `msg="warn 3"`)
	assert.Contains(t, out, `msg="error 4"`)
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	Adapt(New(&buf, "debug", "json")).Debugf("run %d completed", 7)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &rec))
	assert.Equal(t, "DEBUG", rec["level"])
	assert.Equal(t, "run 7 completed", rec["msg"])
}

func TestAdapt_Nil(t *testing.T) {
	assert.NotPanics(t, func() { Adapt(nil).Errorf("dropped") })
}
