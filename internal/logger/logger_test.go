package logger

import (
	"errors"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureStdout runs f with os.Stdout redirected to a pipe and returns the output.
func captureStdout(t *testing.T, f func()) string {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoError(t, err)
	orig := os.Stdout
	os.Stdout = w
	defer func() { os.Stdout = orig }()

	f()

	_ = w.Close()
	b, _ := io.ReadAll(r)
	_ = r.Close()
	return string(b)
}

func lines(s string) []string {
	var out []string
	for _, l := range strings.Split(s, "\n") {
		if strings.TrimSpace(l) != "" {
			out = append(out, l)
		}
	}
	return out
}

func TestLogger_StackAndServiceOnError(t *testing.T) {
	out := captureStdout(t, func() {
		log := New("scoutctl")
		log.Error().Stack().Err(errors.New("boom")).Str("alias", "books").Msg("migration failed")
	})

	got := lines(out)
	require.Len(t, got, 1)
	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(got[0]), &payload))
	assert.Equal(t, "scoutctl", payload["service"])
	assert.Equal(t, "error", payload["level"])
	assert.Equal(t, "books", payload["alias"])
	assert.Contains(t, payload, "stack")
}

func TestNewWithLevel(t *testing.T) {
	out := captureStdout(t, func() {
		log := NewWithLevel("scoutctl", "warn")
		log.Info().Msg("dropped")
		log.Warn().Msg("kept")
	})
	got := lines(out)
	require.Len(t, got, 1)
	assert.Contains(t, got[0], "kept")

	out = captureStdout(t, func() {
		log := NewWithLevel("scoutctl", "loud")
		log.Info().Msg("fallback")
	})
	assert.Len(t, lines(out), 1, "unknown levels fall back to info")
}
