package cli

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twinsync/twinsync/internal/bridge"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "twinsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

const validConfigYAML = `traffic:
  addr: 127.0.0.1:8813
  scenario: town04.scn
driving:
  url: ws://127.0.0.1:2000/rpc
  follow: hero
sync:
  authority: traffic
  sync_color: true
  sync_lights: true
  step_ms: 50
  offset_x: 10.5
  offset_y: -3.25
journal: /tmp/journal.db
`

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, validConfigYAML))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8813", cfg.Traffic.Addr)
	assert.Equal(t, "town04.scn", cfg.Traffic.Scenario)
	assert.Equal(t, "ws://127.0.0.1:2000/rpc", cfg.Driving.URL)
	assert.Equal(t, "hero", cfg.Driving.Follow)
	assert.Equal(t, "/tmp/journal.db", cfg.Journal)
	assert.Equal(t, 10.5, cfg.Sync.OffsetX)
	assert.Equal(t, -3.25, cfg.Sync.OffsetY)

	bcfg, err := cfg.BridgeConfig()
	require.NoError(t, err)
	assert.Equal(t, bridge.AuthorityTraffic, bcfg.Authority)
	assert.True(t, bcfg.SyncVehicleColor)
	assert.True(t, bcfg.SyncVehicleLights)
	assert.Equal(t, 50*time.Millisecond, bcfg.StepLength)
}

func TestLoadConfig_RejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, validConfigYAML+"extra_field: true\n")
	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "extra_field")
}

func TestLoadConfig_Validation(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{
			name: "missing traffic addr",
			body: "traffic:\n  scenario: a.scn\ndriving:\n  url: ws://x/rpc\nsync:\n  authority: traffic\n  step_ms: 50\n",
			want: "traffic.addr",
		},
		{
			name: "missing scenario",
			body: "traffic:\n  addr: h:1\ndriving:\n  url: ws://x/rpc\nsync:\n  authority: traffic\n  step_ms: 50\n",
			want: "traffic.scenario",
		},
		{
			name: "missing driving url",
			body: "traffic:\n  addr: h:1\n  scenario: a.scn\nsync:\n  authority: traffic\n  step_ms: 50\n",
			want: "driving.url",
		},
		{
			name: "bad authority",
			body: "traffic:\n  addr: h:1\n  scenario: a.scn\ndriving:\n  url: ws://x/rpc\nsync:\n  authority: nobody\n  step_ms: 50\n",
			want: "authority",
		},
		{
			name: "zero step",
			body: "traffic:\n  addr: h:1\n  scenario: a.scn\ndriving:\n  url: ws://x/rpc\nsync:\n  authority: traffic\n  step_ms: 0\n",
			want: "step",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tc.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
