package initializer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/ridgeback/internal/config"
)

func TestNewStopsImmediatelyAndSucceeds(t *testing.T) {
	cfg := config.Default()
	cfg.NetworkName = "ridgeback-test"

	r, effects, err := New(cfg, t.TempDir())
	require.NoError(t, err)
	require.Empty(t, effects)
	defer r.Close()

	assert.True(t, r.IsStopped())
	assert.True(t, r.StoppedSuccessfully())

	carry := r.CarryOver()
	assert.Equal(t, cfg.NetworkName, carry.Chain.NetworkName)
	assert.NotNil(t, carry.Identity)
}

func TestNewRejectsMissingNetworkName(t *testing.T) {
	cfg := config.Default()
	_, _, err := New(cfg, t.TempDir())
	require.Error(t, err)
}
