package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "debug", "json")
	log.Debug("entry added", "kind", "experience")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "entry added", line["msg"])
	assert.Equal(t, "experience", line["kind"])
	assert.Equal(t, "DEBUG", line["level"])
}

func TestNew_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "warn", "text")
	log.Info("hidden")
	log.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestNew_BadLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "loud", "text")
	log.Debug("hidden")
	log.Info("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}
