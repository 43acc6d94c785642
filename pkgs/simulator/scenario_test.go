package simulator

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keskad/traintastic-go/pkgs/world"
)

const testScenarioYAML = `
scaleRatio: 0.0115
blocks:
  - name: platform1
zones:
  - name: station
trains:
  - name: local-passenger
    vehicles:
      - name: BR218
        protocol: dcc
        address: 3
        maxSpeed: 140
        speedCurve:
          - step: 1
            speed: 0.05
          - step: 126
            speed: 1.0
`

func writeScenario(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestScenarioApplyPopulatesWorld(t *testing.T) {
	path := writeScenario(t, testScenarioYAML)
	scenario, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Len(t, scenario.Trains, 1)
	assert.Equal(t, 0.0115, scenario.ScaleRatio)

	w := world.New()
	defer w.Close()

	require.NoError(t, scenario.Apply(w))
}

func TestScenarioWatcherReloadsOnWrite(t *testing.T) {
	path := writeScenario(t, testScenarioYAML)

	w := world.New()
	defer w.Close()

	watcher, err := NewScenarioWatcher(path, w)
	require.NoError(t, err)
	require.NoError(t, watcher.Watch())
	defer watcher.Stop()

	// A second train added by an edited scenario file should be picked up
	// without restarting the simulator.
	updated := testScenarioYAML + `
  - name: freight
    vehicles:
      - name: BR151
        protocol: dcc
        address: 7
`
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	// The initial load registers one train; a reload re-applies the whole
	// file additively, registering two more.
	assert.Eventually(t, func() bool {
		return len(w.TrainsByID()) >= 3
	}, 2*time.Second, 20*time.Millisecond)
}
