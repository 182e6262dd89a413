package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormat(t *testing.T) {
	assert.Equal(t, FormatConsole, ParseFormat("console"))
	assert.Equal(t, FormatConsole, ParseFormat(" Pretty "))
	assert.Equal(t, FormatJSON, ParseFormat("json"))
	assert.Equal(t, FormatJSON, ParseFormat(""))
	assert.Equal(t, FormatJSON, ParseFormat("logfmt"))
}

func TestConfigure(t *testing.T) {
	prevLogger, prevLevel := log.Logger, zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = prevLogger
		zerolog.SetGlobalLevel(prevLevel)
	})

	t.Run("json at info level", func(t *testing.T) {
		var buf bytes.Buffer
		Configure(&buf, FormatJSON, false)

		log.Debug().Msg("hidden")
		log.Info().Str("rule", "api").Msg("visible")

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "visible", entry["message"])
		assert.Equal(t, "api", entry["rule"])
		assert.Contains(t, entry, "time")
	})

	t.Run("console at debug level", func(t *testing.T) {
		var buf bytes.Buffer
		Configure(&buf, FormatConsole, true)

		log.Debug().Msg("shown in debug")
		assert.Contains(t, buf.String(), "shown in debug")
		assert.NotContains(t, buf.String(), `"message"`)
	})
}
