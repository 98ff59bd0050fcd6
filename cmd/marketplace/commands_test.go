package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mp "github.com/R3E-Network/listing_marketplace/internal/marketplace"
)

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := newRootCmd()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "marketplace.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDemoSellsOutAndCloses(t *testing.T) {
	path := writeConfig(t, "logging:\n  level: error\n")

	stdout, stderr, err := execute(t, "--config", path, "demo", "--quantity", "3", "--buy", "3")
	require.NoError(t, err, stderr)

	assert.Contains(t, stdout, "created")
	assert.Contains(t, stdout, "bought 3 units, 0 left")
	assert.Contains(t, stdout, "closed")
	assert.Contains(t, stdout, "not found")
	assert.Contains(t, stderr, "create [")
}

func TestDemoPartialPurchaseKeepsListing(t *testing.T) {
	path := writeConfig(t, "logging:\n  level: error\n")

	stdout, _, err := execute(t, "--config", path, "demo", "--quantity", "5", "--buy", "2")
	require.NoError(t, err)
	assert.Contains(t, stdout, "bought 2 units, 3 left")
	assert.NotContains(t, stdout, "closed")
	assert.Contains(t, stdout, "units left")
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	path := writeConfig(t, "logging:\n  level: error\n")

	_, stderr, err := execute(t, "--config", path, "create", "--quantity", "0", "--price", "10")
	require.Error(t, err)
	assert.True(t, errors.Is(err, mp.ErrInvalidInput))
	assert.Contains(t, stderr, "quantity must be positive")

	_, _, err = execute(t, "--config", path, "create", "--quantity", "1", "--price", "1", "--price-algo", "1")
	require.Error(t, err)
}

func TestCreateOnSimulatedNetwork(t *testing.T) {
	path := writeConfig(t, "logging:\n  level: error\n")

	stdout, _, err := execute(t, "--config", path, "create", "--quantity", "4", "--price-algo", "2")
	require.NoError(t, err)
	assert.Contains(t, stdout, "listing")
	assert.Contains(t, stdout, "address")
}

func TestShowUnknownListing(t *testing.T) {
	path := writeConfig(t, "logging:\n  level: error\n")

	stdout, _, err := execute(t, "--config", path, "show", "4242")
	require.NoError(t, err)
	assert.Contains(t, stdout, "listing 4242 not found")

	_, _, err = execute(t, "--config", path, "show", "zero")
	require.Error(t, err)
}

func TestBuyUnknownListing(t *testing.T) {
	path := writeConfig(t, "logging:\n  level: error\n")

	_, stderr, err := execute(t, "--config", path, "buy", "4242", "--quantity", "1")
	require.Error(t, err)
	assert.Contains(t, stderr, "not_found")
}

func TestRunsEmptyJournal(t *testing.T) {
	path := writeConfig(t, "logging:\n  level: error\n")

	stdout, _, err := execute(t, "--config", path, "runs")
	require.NoError(t, err)
	assert.Contains(t, stdout, "no runs recorded")

	_, stderr, err := execute(t, "--config", path, "runs", "missing")
	require.Error(t, err)
	assert.Contains(t, stderr, "run not found")
}

func TestInvalidConfig(t *testing.T) {
	path := writeConfig(t, "network: moon\n")

	_, _, err := execute(t, "--config", path, "show", "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown network")
}

func TestResolvePrice(t *testing.T) {
	p, err := resolvePrice(500, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), p)

	p, err = resolvePrice(0, 3)
	require.NoError(t, err)
	assert.Equal(t, uint64(3_000_000), p)

	_, err = resolvePrice(0, ^uint64(0))
	assert.ErrorIs(t, err, mp.ErrInvalidInput)
}

func TestParseAppID(t *testing.T) {
	id, err := parseAppID("1001")
	require.NoError(t, err)
	assert.Equal(t, mp.AppID(1001), id)

	_, err = parseAppID("0")
	assert.Error(t, err)
	_, err = parseAppID("-3")
	assert.Error(t, err)
}

func TestEnvFileLoadedBeforeConfig(t *testing.T) {
	t.Setenv("MARKETPLACE_NETWORK", "")
	require.NoError(t, os.Unsetenv("MARKETPLACE_NETWORK"))

	envPath := filepath.Join(t.TempDir(), "marketplace.env")
	require.NoError(t, os.WriteFile(envPath, []byte("MARKETPLACE_NETWORK=moon\n"), 0o600))
	path := writeConfig(t, "logging:\n  level: error\n")

	_, _, err := execute(t, "--env-file", envPath, "--config", path, "show", "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown network")

	_, _, err = execute(t, "--env-file", filepath.Join(t.TempDir(), "absent.env"), "--config", path, "show", "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load env file")
}
