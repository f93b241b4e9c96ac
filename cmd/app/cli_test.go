package app

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestConfigCommandPrintsEffectiveConfig(t *testing.T) {
	path := writeFile(t, "config.yaml", "device_id: printed\ntank:\n  volume: 0.0025\n")

	out, err := runCmd(t, "config", "--config", path)
	require.NoError(t, err)

	var got Config
	require.NoError(t, yaml.Unmarshal([]byte(out), &got))
	assert.Equal(t, "printed", got.DeviceID)
	assert.Equal(t, 0.0025, got.Tank.Volume)
	assert.Equal(t, 10*time.Millisecond, got.Simulation.Step)
	assert.Contains(t, out, "nozzle_diameter:")
}

func TestBlowdownCommandWritesCSV(t *testing.T) {
	out := filepath.Join(t.TempDir(), "blowdown.csv")
	cfgPath := filepath.Join(t.TempDir(), "none.yaml")

	_, err := runCmd(t, "blowdown", "--config", cfgPath, "--out", out, "--log-level", "error")
	require.NoError(t, err)

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Greater(t, len(rows), 2)
	assert.Equal(t, "step", rows[0][0])

	last := rows[len(rows)-1]
	assert.Equal(t, "exhausted", last[2])
}

func TestBlowdownCommandStepBudget(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "none.yaml")
	out, err := runCmd(t, "blowdown", "--config", cfgPath, "--max-steps", "3", "--log-level", "error")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "blowdown incomplete")

	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Len(t, lines, 5) // header, initial state, three steps
}

func TestBlowdownCommandStepOverride(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "none.yaml")
	out, err := runCmd(t, "blowdown", "--config", cfgPath, "--step", "5ms", "--max-steps", "2", "--log-level", "error")
	require.Error(t, err)

	rows, err := csv.NewReader(strings.NewReader(out)).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	for i, want := range map[int]float64{2: 0.005, 3: 0.01} {
		got, err := strconv.ParseFloat(rows[i][1], 64)
		require.NoError(t, err)
		assert.InDelta(t, want, got, 1e-12, "row %d", i)
	}

	_, err = runCmd(t, "blowdown", "--config", cfgPath, "--step", "0s", "--log-level", "error")
	assert.ErrorContains(t, err, "--step must be positive")

	_, err = runCmd(t, "blowdown", "--config", cfgPath, "--step", "fast")
	assert.Error(t, err)
}

func TestRootRejectsBadLogLevel(t *testing.T) {
	_, err := runCmd(t, "config", "--config", "", "--log-level", "loud")
	assert.Error(t, err)
}

func TestServeStopsOnCancel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Controllers.HTTP.Addr = "127.0.0.1:0"
	cfg.Simulation.Interval = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)
	assert.NoError(t, Serve(ctx, cfg))
}
