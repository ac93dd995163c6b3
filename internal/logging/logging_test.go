package logging

import (
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuffer_KeepsNewestLines(t *testing.T) {
	buf := NewBuffer(3)
	for i := 0; i < 5; i++ {
		_, err := fmt.Fprintf(buf, "line %d\n", i)
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"line 2", "line 3", "line 4"}, buf.Lines())
}

func TestBuffer_LinesIsACopy(t *testing.T) {
	buf := NewBuffer(0)
	_, _ = buf.Write([]byte("a"))

	lines := buf.Lines()
	lines[0] = "changed"
	assert.Equal(t, "a", buf.Lines()[0])
}

func TestInit_TeesIntoBuffer(t *testing.T) {
	prev := log.Logger
	prevLevel := zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = prev
		zerolog.SetGlobalLevel(prevLevel)
	})

	buf := NewBuffer(10)
	Init("warn", "json", buf)

	log.Info().Msg("dropped")
	log.Warn().Str("job_id", "j1").Msg("kept")

	lines := buf.Lines()
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"message":"kept"`)
	assert.Contains(t, lines[0], `"job_id":"j1"`)
}

func TestInit_BadLevelFallsBackToInfo(t *testing.T) {
	prevLevel := zerolog.GlobalLevel()
	prev := log.Logger
	t.Cleanup(func() {
		log.Logger = prev
		zerolog.SetGlobalLevel(prevLevel)
	})

	Init("loud", "json", nil)
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}
