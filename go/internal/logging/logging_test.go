package logging

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/require"
)

func TestSetupJSON(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })
	var buf bytes.Buffer
	require.NoError(t, Setup("warn", false, &buf))

	log.Info().Msg("hidden")
	log.Warn().Str("game_id", "0xgame").Msg("shown")

	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), `"game_id":"0xgame"`)
}

func TestSetupRejectsUnknownLevel(t *testing.T) {
	require.Error(t, Setup("loud", false, &bytes.Buffer{}))
}
