package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCommand_ValidConfig(t *testing.T) {
	path := writeConfig(t, validConfigYAML)
	out, err := executeCommand(t, "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "ok")
	assert.Contains(t, out, "authority traffic")
}

func TestValidateCommand_JSONOutput(t *testing.T) {
	path := writeConfig(t, validConfigYAML)
	out, err := executeCommand(t, "validate", path, "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string          `json:"status"`
		Data   validateSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, path, resp.Data.Config)
	assert.Equal(t, "traffic", resp.Data.Authority)
	assert.Positive(t, resp.Data.CatalogEntries)
}

func TestValidateCommand_InvalidConfig(t *testing.T) {
	path := writeConfig(t, "traffic:\n  addr: h:1\nsync:\n  authority: traffic\n  step_ms: 50\n")
	_, err := executeCommand(t, "validate", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "config invalid")
}

func TestValidateCommand_BadCatalogDir(t *testing.T) {
	cfg := validConfigYAML + "catalog: /nonexistent/catalog\n"
	path := writeConfig(t, cfg)
	_, err := executeCommand(t, "validate", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "catalog invalid")
}
