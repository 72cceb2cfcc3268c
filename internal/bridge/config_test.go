package bridge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAuthority(t *testing.T) {
	for _, valid := range []string{"none", "traffic", "driving"} {
		got, err := ParseAuthority(valid)
		require.NoError(t, err)
		assert.Equal(t, Authority(valid), got)
	}

	_, err := ParseAuthority("both")
	assert.ErrorContains(t, err, "invalid traffic-light authority")

	_, err = ParseAuthority("")
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{Authority: AuthorityNone, StepLength: 100 * time.Millisecond}
	assert.NoError(t, cfg.Validate())

	cfg.StepLength = 0
	assert.ErrorContains(t, cfg.Validate(), "step length")

	cfg.StepLength = -time.Second
	assert.Error(t, cfg.Validate())

	cfg = Config{Authority: "east", StepLength: time.Second}
	assert.Error(t, cfg.Validate())
}
