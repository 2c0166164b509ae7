package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const simulatedInventory = `
log:
  level: error
concurrency: 2
devices:
  - name: leaf1
    dialect: os10
    transport: mock
  - name: leaf2
    dialect: os10
    transport: mock
  - name: ce1
    dialect: vrp
    address: 192.0.2.30
`

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cliconf.yaml")
	require.NoError(t, os.WriteFile(path, []byte(simulatedInventory), 0o600))

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", path}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestInfoFansOutInInventoryOrder(t *testing.T) {
	out, err := run(t, "info", "-d", "leaf1", "-d", "leaf2")
	require.NoError(t, err)

	assert.Contains(t, out, "=== leaf1\nnetwork_os: dellemc.os10.os10\n")
	assert.Contains(t, out, "network_os_hostname: leaf2")
	assert.Less(t, bytes.Index([]byte(out), []byte("=== leaf1")), bytes.Index([]byte(out), []byte("=== leaf2")))
}

func TestSimulateOverridesTransport(t *testing.T) {
	out, err := run(t, "--simulate", "-d", "ce1", "config")
	require.NoError(t, err)
	assert.Contains(t, out, "sysname ce1")
}

func TestConfigRejectsUnknownSource(t *testing.T) {
	_, err := run(t, "-d", "leaf1", "config", "candidate")
	assert.ErrorContains(t, err, "leaf1")
}

func TestEditReportsAppliedLines(t *testing.T) {
	out, err := run(t, "-d", "leaf1", "edit", "interface vlan10", "description users")
	require.NoError(t, err)
	assert.Contains(t, out, "applied 2 of 2 lines")
}

func TestEditFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vlan.cfg")
	require.NoError(t, os.WriteFile(path, []byte("interface vlan20\r\n\n no shutdown\n"), 0o600))

	out, err := run(t, "-d", "leaf1", "edit", "--file", path)
	require.NoError(t, err)
	assert.Contains(t, out, "applied 2 of 2 lines")
}

func TestExec(t *testing.T) {
	out, err := run(t, "-d", "leaf2", "exec", "show clock")
	require.NoError(t, err)
	assert.Contains(t, out, "12:00:01.042 UTC Fri Oct 16 2026")

	out, err = run(t, "-d", "leaf2", "exec", "show bogus")
	assert.Error(t, err)
	assert.NotContains(t, out, "12:00:01")
}

func TestCapabilities(t *testing.T) {
	out, err := run(t, "-d", "leaf1", "capabilities")
	require.NoError(t, err)
	assert.Contains(t, out, `"network_api":"cliconf"`)
	assert.Contains(t, out, `"network_os_version":"10.4.3.1"`)
}

func TestDialects(t *testing.T) {
	out, err := run(t, "dialects")
	require.NoError(t, err)
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "dellemc.os10.os10")
}

func TestUnknownDevice(t *testing.T) {
	_, err := run(t, "-d", "spine9", "info")
	assert.ErrorContains(t, err, "spine9")
}
