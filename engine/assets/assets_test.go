package assets

import (
	"context"
	"encoding/binary"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/foveal/engine/assets/loaders"
	"github.com/spaghettifunk/foveal/engine/core"
	"github.com/spaghettifunk/foveal/engine/renderer/metadata"
)

func writeShader(t *testing.T, dir, name string, words ...uint32) string {
	t.Helper()
	buf := make([]byte, 4*(len(words)+1))
	binary.LittleEndian.PutUint32(buf, loaders.SpirvMagic)
	for i, w := range words {
		binary.LittleEndian.PutUint32(buf[4*(i+1):], w)
	}
	path := filepath.Join(dir, "shaders", name+".spv")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, buf, 0o644))
	return path
}

func newManager(t *testing.T) (*AssetManager, string, *core.EventQueue) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "shaders"), 0o755))
	events := core.NewEventQueue(16)
	return NewAssetManager(dir, events), dir, events
}

func TestShaderIsLoadedAndCached(t *testing.T) {
	am, dir, _ := newManager(t)
	path := writeShader(t, dir, "forward.vert", 1, 2)
	require.NoError(t, am.Initialize(false))

	code, err := am.Shader("forward.vert")
	require.NoError(t, err)
	assert.Equal(t, []uint32{loaders.SpirvMagic, 1, 2}, code)

	// The cache answers even once the file is gone.
	require.NoError(t, os.Remove(path))
	code, err = am.Shader("forward.vert")
	require.NoError(t, err)
	assert.Len(t, code, 3)

	info, ok := am.Asset(path)
	require.True(t, ok)
	assert.Equal(t, metadata.ResourceTypeBinary, info.Type)
}

func TestShaderMissing(t *testing.T) {
	am, _, _ := newManager(t)
	require.NoError(t, am.Initialize(false))

	_, err := am.Shader("nope.frag")
	assert.Error(t, err)
}

func TestInitializeMissingDirectory(t *testing.T) {
	am := NewAssetManager(filepath.Join(t.TempDir(), "missing"), core.NewEventQueue(4))
	assert.Error(t, am.Initialize(false))
}

func TestPreload(t *testing.T) {
	am, dir, _ := newManager(t)
	names := []string{"forward.vert", "forward.frag", "vrs_img.comp"}
	for i, n := range names {
		writeShader(t, dir, n, uint32(i))
	}
	require.NoError(t, am.Initialize(false))
	require.NoError(t, am.Preload(context.Background(), names))

	am.mutex.RLock()
	defer am.mutex.RUnlock()
	assert.Len(t, am.shaders, len(names))
}

func TestPreloadFailsOnMissingShader(t *testing.T) {
	am, dir, _ := newManager(t)
	writeShader(t, dir, "forward.vert")
	require.NoError(t, am.Initialize(false))

	err := am.Preload(context.Background(), []string{"forward.vert", "missing.frag"})
	assert.Error(t, err)
}

func TestLoadTexture(t *testing.T) {
	am, dir, _ := newManager(t)
	img := image.NewNRGBA(image.Rect(0, 0, 3, 1))
	img.Set(0, 0, color.NRGBA{G: 255, A: 255})
	f, err := os.Create(filepath.Join(dir, "eye.png"))
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	require.NoError(t, am.Initialize(false))

	data, err := am.LoadTexture("eye.png", false)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), data.Width)
	assert.Equal(t, uint32(1), data.Height)
	assert.Equal(t, []uint8{0, 255, 0, 255}, data.Pixels[0:4])
}

func drainShaderChanges(events *core.EventQueue) []core.Event {
	var got []core.Event
	events.Drain(func(e core.Event) {
		if e.Code == core.EVENT_CODE_SHADER_CHANGED {
			got = append(got, e)
		}
	})
	return got
}

func TestShaderReloadReplacesCachedModule(t *testing.T) {
	am, dir, events := newManager(t)
	am.reloadDelay = 10 * time.Millisecond
	path := writeShader(t, dir, "forward.frag", 1)
	require.NoError(t, am.Initialize(false))
	_, err := am.Shader("forward.frag")
	require.NoError(t, err)

	writeShader(t, dir, "forward.frag", 9)
	am.handleFileEvent(path)

	var got []core.Event
	require.Eventually(t, func() bool {
		got = append(got, drainShaderChanges(events)...)
		return len(got) > 0
	}, 5*time.Second, 5*time.Millisecond)
	require.Len(t, got, 1)
	assert.Equal(t, path, got[0].Path)

	code, err := am.Shader("forward.frag")
	require.NoError(t, err)
	assert.Equal(t, []uint32{loaders.SpirvMagic, 9}, code)
}

func TestShaderReloadWaitsForWritesToSettle(t *testing.T) {
	am, dir, events := newManager(t)
	am.reloadDelay = 50 * time.Millisecond
	path := writeShader(t, dir, "vrs_img.comp", 1)
	require.NoError(t, am.Initialize(false))
	defer func() { assert.NoError(t, am.Shutdown()) }()

	for i := 0; i < 5; i++ {
		am.handleFileEvent(path)
	}

	var got []core.Event
	require.Eventually(t, func() bool {
		got = append(got, drainShaderChanges(events)...)
		return len(got) > 0
	}, 5*time.Second, 5*time.Millisecond)
	time.Sleep(3 * am.reloadDelay)
	got = append(got, drainShaderChanges(events)...)
	assert.Len(t, got, 1)
}

func TestBrokenShaderKeepsPreviousModule(t *testing.T) {
	am, dir, events := newManager(t)
	path := writeShader(t, dir, "forward.frag", 4)
	require.NoError(t, am.Initialize(false))
	_, err := am.Shader("forward.frag")
	require.NoError(t, err)

	// Half written by the compiler.
	require.NoError(t, os.WriteFile(path, []byte{0x03, 0x02, 0x23}, 0o644))
	am.reloadShader(path, "forward.frag")
	assert.Equal(t, 0, events.Len())

	code, err := am.Shader("forward.frag")
	require.NoError(t, err)
	assert.Equal(t, []uint32{loaders.SpirvMagic, 4}, code)

	writeShader(t, dir, "forward.frag", 5)
	am.reloadShader(path, "forward.frag")
	assert.Len(t, drainShaderChanges(events), 1)
	code, err = am.Shader("forward.frag")
	require.NoError(t, err)
	assert.Equal(t, []uint32{loaders.SpirvMagic, 5}, code)
}

func TestHandleFileEventIgnoresOtherFiles(t *testing.T) {
	am, dir, events := newManager(t)
	require.NoError(t, am.Initialize(false))

	am.handleFileEvent(filepath.Join(dir, "shaders", "forward.frag"))
	am.handleFileEvent(filepath.Join(dir, "eye.png"))
	assert.Equal(t, 0, events.Len())
}

func TestWatcherReportsShaderChanges(t *testing.T) {
	am, dir, events := newManager(t)
	am.reloadDelay = 20 * time.Millisecond
	require.NoError(t, am.Initialize(true))
	defer func() { assert.NoError(t, am.Shutdown()) }()

	writeShader(t, dir, "vrs_img.comp", 3)

	require.Eventually(t, func() bool {
		found := false
		events.Drain(func(e core.Event) {
			if e.Code == core.EVENT_CODE_SHADER_CHANGED {
				found = true
			}
		})
		return found
	}, 5*time.Second, 20*time.Millisecond)
}

func TestDetermineAssetType(t *testing.T) {
	assert.Equal(t, metadata.ResourceTypeBinary, determineAssetType("a/shaders/x.vert.spv"))
	assert.Equal(t, metadata.ResourceTypeImage, determineAssetType("a/b.PNG"))
	assert.Equal(t, metadata.ResourceTypeImage, determineAssetType("a/b.webp"))
	assert.Equal(t, metadata.ResourceTypeNone, determineAssetType("a/b.glsl"))
}
