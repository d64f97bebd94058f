package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urmzd/hass-mcp/pkg/device"
	"github.com/urmzd/hass-mcp/pkg/homeassistant/hatest"
)

func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(strings.NewReader(stdin), &stdout, &stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestVersion(t *testing.T) {
	stdout, _, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.Equal(t, "dev\n", stdout)
}

func TestServe_Demo(t *testing.T) {
	input := strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"get_devices_by_type","arguments":{"type":"climate"}}}`,
	}, "\n")

	stdout, stderr, err := execute(t, input, "--demo", "--log-level", "debug")
	require.NoError(t, err)
	assert.NotEmpty(t, stderr)

	scanner := bufio.NewScanner(strings.NewReader(stdout))
	lines := 0
	for scanner.Scan() {
		var frame map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &frame), "unexpected bytes on stdout: %q", scanner.Text())
		lines++
	}
	assert.Equal(t, 2, lines)
	assert.Contains(t, stdout, "climate.hallway")
}

func TestServe_MissingTokenIsFatal(t *testing.T) {
	t.Setenv("HOME_ASSISTANT_TOKEN", "")

	stdout, stderr, err := execute(t, `{"jsonrpc":"2.0","id":1,"method":"ping"}`)
	require.Error(t, err)
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, "HOME_ASSISTANT_TOKEN")
}

func TestCheck(t *testing.T) {
	hub := hatest.NewServer(device.DemoStates()...)
	defer hub.Close()

	t.Setenv("HOME_ASSISTANT_URL", hub.URL)
	t.Setenv("HOME_ASSISTANT_TOKEN", hatest.Token)

	stdout, _, err := execute(t, "", "check")
	require.NoError(t, err)
	assert.Equal(t, "API running. (5 entities)\n", stdout)
}

func TestCheck_BadToken(t *testing.T) {
	hub := hatest.NewServer()
	defer hub.Close()

	t.Setenv("HOME_ASSISTANT_URL", hub.URL)
	t.Setenv("HOME_ASSISTANT_TOKEN", "nope")

	_, stderr, err := execute(t, "", "check")
	require.Error(t, err)
	assert.NotContains(t, stderr, "nope")
}
