package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel("warning"))
	assert.Equal(t, zerolog.ErrorLevel, ParseLevel(" error "))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel(""))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("verbose"))
}

func TestMake_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := New().To(&buf).Format("json").Level("info").Make()

	log.Debug().Msg("hidden")
	log.Info().Str("step", "operateurs").Int("rows", 3).Msg("step done")

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, "step done", line["message"])
	assert.Equal(t, "operateurs", line["step"])
	assert.Equal(t, float64(3), line["rows"])
}

func TestMake_Console(t *testing.T) {
	var buf bytes.Buffer
	log := New().To(&buf).Make()
	log.Info().Str("table", "Solutions").Msg("cleared")
	assert.Contains(t, buf.String(), "cleared")
	assert.Contains(t, buf.String(), "table=Solutions")
}
