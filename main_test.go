package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krau/konabatch/config"
	"github.com/krau/konabatch/service"
)

func TestApplyFlags(t *testing.T) {
	cmd := rootCmd()
	require.NoError(t, cmd.ParseFlags([]string{
		"--batch-size", "4",
		"--general-mcut-enabled",
		"-d", "-1",
		"--model", "owner/tagger",
		"--channel-order", "rgb",
		"--include-ratings",
	}))

	c := config.Default()
	applyFlags(cmd, &c)

	assert.Equal(t, 4, c.BatchSize)
	assert.True(t, c.GeneralMCut)
	assert.Equal(t, -1, c.DeviceID)
	assert.Equal(t, "owner/tagger", c.Model)
	assert.Equal(t, "rgb", c.ChannelOrder)
	assert.True(t, c.IncludeRatings)

	// unset flags keep config values
	assert.Equal(t, float32(0.35), c.GeneralThreshold)
	assert.Equal(t, float32(0.85), c.CharacterThreshold)
	assert.False(t, c.CharacterMCut)
	require.NoError(t, c.Validate())
}

func TestPreprocessOptions(t *testing.T) {
	c := config.Default()
	opts := preprocessOptions(&c)
	assert.Equal(t, service.BGR, opts.ChannelOrder)
	assert.Equal(t, service.NormNone, opts.Normalize)
}

func TestRootRequiresTwoArgs(t *testing.T) {
	cmd := rootCmd()
	require.Error(t, cmd.Args(cmd, []string{"only-input"}))
	require.NoError(t, cmd.Args(cmd, []string{"in", "out"}))
}
