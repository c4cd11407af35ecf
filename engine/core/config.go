package core

import (
	"bytes"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/spaghettifunk/foveal/engine/math"
	"github.com/spaghettifunk/foveal/engine/renderer/metadata"
)

type HandoffMode string

const (
	// Auxiliary passes signal a dedicated semaphore the consumer waits on.
	HandoffSemaphore HandoffMode = "semaphore"
	// Auxiliary passes rely on submission order on the same queue.
	HandoffQueueOrder HandoffMode = "queue_order"
)

type SampleKind string

const (
	SampleTriangle SampleKind = "triangle"
	SampleVRS      SampleKind = "vrs"
)

type ApplicationSection struct {
	Name   string     `toml:"name"`
	Sample SampleKind `toml:"sample"`
	Width  uint32     `toml:"width"`
	Height uint32     `toml:"height"`
	PosX   int32      `toml:"pos_x"`
	PosY   int32      `toml:"pos_y"`
}

type LogSection struct {
	Level LogLevel `toml:"level"`
}

type RendererSection struct {
	Validation bool `toml:"validation"`
	SRGB       bool `toml:"srgb"`
	// Ordered by preference, the first one supported by the surface wins.
	PresentModes []metadata.PresentMode `toml:"present_modes"`
	// 0 means min image count + 1.
	PresentableImages uint32 `toml:"presentable_images"`
	// 0 means one frame in flight per presentable image.
	ConcurrentFrames              uint32      `toml:"concurrent_frames"`
	Handoff                       HandoffMode `toml:"handoff"`
	ExtraRenderFinishedSemaphores uint32      `toml:"extra_render_finished_semaphores"`
	DebugChecks                   bool        `toml:"debug_checks"`
}

type VRSSection struct {
	// Off renders the vrs sample at full rate, for comparison.
	Enabled      bool    `toml:"enabled"`
	TexelWidth   uint32  `toml:"texel_width"`
	TexelHeight  uint32  `toml:"texel_height"`
	FovealRadius float32 `toml:"foveal_radius"`
	// Tints the image with the shading rate map.
	Overlay bool `toml:"overlay"`
	// Gaze source: "mouse" or "fixed".
	Gaze string `toml:"gaze"`
}

type AssetsSection struct {
	Dir   string `toml:"dir"`
	Watch bool   `toml:"watch"`
}

type Config struct {
	Application ApplicationSection `toml:"application"`
	Log         LogSection         `toml:"log"`
	Renderer    RendererSection    `toml:"renderer"`
	VRS         VRSSection         `toml:"vrs"`
	Assets      AssetsSection      `toml:"assets"`
}

func DefaultConfig() *Config {
	return &Config{
		Application: ApplicationSection{
			Name:   "Foveal Triangle",
			Sample: SampleTriangle,
			Width:  1280,
			Height: 720,
			PosX:   100,
			PosY:   100,
		},
		Log: LogSection{
			Level: InfoLevel,
		},
		Renderer: RendererSection{
			Validation: false,
			SRGB:       true,
			PresentModes: []metadata.PresentMode{
				metadata.PresentModeMailbox,
				metadata.PresentModeFifoRelaxed,
				metadata.PresentModeFifo,
				metadata.PresentModeImmediate,
			},
			Handoff: HandoffSemaphore,
		},
		VRS: VRSSection{
			Enabled:      true,
			TexelWidth:   16,
			TexelHeight:  16,
			FovealRadius: 0.2,
			Gaze:         "mouse",
		},
		Assets: AssetsSection{
			Dir:   "assets",
			Watch: false,
		},
	}
}

// LoadConfig reads a TOML file on top of DefaultConfig. Missing keys keep
// their default value.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, Wrapf(err, "reading config %s", path)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return nil, Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, Wrapf(err, "decoding toml")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Application.Width == 0 || c.Application.Height == 0 {
		return Errorf("application size must be non zero, got %dx%d", c.Application.Width, c.Application.Height)
	}
	switch c.Application.Sample {
	case SampleTriangle, SampleVRS:
	default:
		return Errorf("unknown sample %q", c.Application.Sample)
	}
	switch c.Renderer.Handoff {
	case HandoffSemaphore, HandoffQueueOrder:
	case "":
		c.Renderer.Handoff = HandoffSemaphore
	default:
		return Errorf("unknown handoff mode %q", c.Renderer.Handoff)
	}
	if len(c.Renderer.PresentModes) == 0 {
		c.Renderer.PresentModes = DefaultConfig().Renderer.PresentModes
	}
	if c.VRS.TexelWidth == 0 || c.VRS.TexelHeight == 0 {
		return Errorf("vrs texel size must be non zero, got %dx%d", c.VRS.TexelWidth, c.VRS.TexelHeight)
	}
	if !math.IsPowerOf2(c.VRS.TexelWidth) || !math.IsPowerOf2(c.VRS.TexelHeight) {
		return Errorf("vrs texel size must be a power of two, got %dx%d", c.VRS.TexelWidth, c.VRS.TexelHeight)
	}
	switch strings.ToLower(c.VRS.Gaze) {
	case "mouse", "fixed":
	default:
		return Errorf("unknown gaze source %q", c.VRS.Gaze)
	}
	return nil
}
