package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeEvent(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "event.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestExpandCommand(t *testing.T) {
	path := writeEvent(t, `{
		"id": "standup",
		"title": "Standup",
		"start": "2024-01-01T09:00:00Z",
		"end": "2024-01-01T09:15:00Z",
		"recurring": {"frequency": "daily", "interval": 1,
			"exceptions": [{"date": "2024-01-02", "deleted": true}]}
	}`)

	out, err := run(t, "", "expand", "--event", path, "--start", "2024-01-01", "--end", "2024-01-05")
	require.NoError(t, err)

	var got expandOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got), out)
	assert.False(t, got.Truncated)
	require.Len(t, got.Occurrences, 4)
	assert.Equal(t, "2024-01-01", got.Occurrences[0].OccurrenceDate)
	assert.Equal(t, "2024-01-03", got.Occurrences[1].OccurrenceDate)
}

func TestExpandCommandCap(t *testing.T) {
	path := writeEvent(t, `{
		"id": "ping", "title": "Ping",
		"start": "2024-01-01T00:00:00Z", "end": "2024-01-01T00:01:00Z",
		"recurring": {"frequency": "daily", "interval": 1}
	}`)

	out, err := run(t, "", "expand", "--event", path, "--start", "2024-01-01", "--end", "2024-12-31", "--max-iterations", "5")
	require.NoError(t, err)

	var got expandOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got), out)
	assert.True(t, got.Truncated)
	assert.Len(t, got.Occurrences, 5)
}

func TestExpandCommandErrors(t *testing.T) {
	invalid := writeEvent(t, `{"title": "", "start": "2024-01-01T00:00:00Z", "end": "2024-01-01T01:00:00Z"}`)
	_, err := run(t, "", "expand", "--event", invalid, "--start", "2024-01-01", "--end", "2024-01-02")
	require.Error(t, err)

	valid := writeEvent(t, `{"title": "x", "start": "2024-01-01T00:00:00Z", "end": "2024-01-01T01:00:00Z"}`)
	_, err = run(t, "", "expand", "--event", valid, "--start", "soon", "--end", "2024-01-02")
	require.Error(t, err)

	_, err = run(t, "", "expand", "--event", valid, "--start", "2024-02-01", "--end", "2024-01-02")
	require.Error(t, err)

	_, err = run(t, "", "expand", "--start", "2024-01-01", "--end", "2024-01-02")
	require.Error(t, err, "--event is required")
}

func TestHashPasswordFromStdin(t *testing.T) {
	out, err := run(t, "correct horse\n", "hash-password", "--cost", "4")
	require.NoError(t, err)

	hash := strings.TrimSpace(out)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("correct horse")))

	_, err = run(t, "\n", "hash-password")
	require.Error(t, err)
}

func TestUnknownLogLevel(t *testing.T) {
	_, err := run(t, "", "--log-level", "chatty", "hash-password")
	require.Error(t, err)
}

func TestParseWindowBound(t *testing.T) {
	got, err := parseWindowBound("2024-03-01", true)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01T23:59:59Z", got.Format("2006-01-02T15:04:05Z07:00"))

	got, err = parseWindowBound("2024-03-01T10:00:00+02:00", false)
	require.NoError(t, err)
	assert.Equal(t, 8, got.UTC().Hour())
}
