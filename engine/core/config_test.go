package core

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/foveal/engine/renderer/metadata"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, HandoffSemaphore, cfg.Renderer.Handoff)
	assert.Equal(t, metadata.PresentModeMailbox, cfg.Renderer.PresentModes[0])
	assert.Equal(t, uint32(16), cfg.VRS.TexelWidth)
}

func TestParseConfigOverridesDefaults(t *testing.T) {
	data := []byte(`
[application]
sample = "vrs"
width = 800

[log]
level = "debug"

[renderer]
srgb = false
present_modes = ["vsync", "immediate"]
concurrent_frames = 2
handoff = "queue_order"
`)
	cfg, err := ParseConfig(data)
	require.NoError(t, err)

	assert.Equal(t, SampleVRS, cfg.Application.Sample)
	assert.Equal(t, uint32(800), cfg.Application.Width)
	assert.Equal(t, uint32(720), cfg.Application.Height)
	assert.Equal(t, DebugLevel, cfg.Log.Level)
	assert.False(t, cfg.Renderer.SRGB)
	assert.Equal(t, []metadata.PresentMode{metadata.PresentModeFifo, metadata.PresentModeImmediate}, cfg.Renderer.PresentModes)
	assert.Equal(t, uint32(2), cfg.Renderer.ConcurrentFrames)
	assert.Equal(t, HandoffQueueOrder, cfg.Renderer.Handoff)
	assert.True(t, cfg.VRS.Enabled)
}

func TestParseConfigRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"present mode": "[renderer]\npresent_modes = [\"sometimes\"]\n",
		"handoff":      "[renderer]\nhandoff = \"pigeon\"\n",
		"sample":       "[application]\nsample = \"teapot\"\n",
		"log level":    "[log]\nlevel = \"loud\"\n",
		"zero size":    "[application]\nwidth = 0\n",
		"unknown key":  "[renderer]\nmystery = true\n",
		"texel":        "[vrs]\ntexel_width = 0\n",
		"texel power":  "[vrs]\ntexel_height = 12\n",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseConfig([]byte(data))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[application]\nname = \"test\"\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "test", cfg.Application.Name)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}
