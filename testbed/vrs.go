package testbed

import (
	"context"
	"fmt"
	"strings"

	"github.com/spaghettifunk/foveal/engine"
	"github.com/spaghettifunk/foveal/engine/core"
	"github.com/spaghettifunk/foveal/engine/renderer"
	"github.com/spaghettifunk/foveal/engine/renderer/metadata"
	"github.com/spaghettifunk/foveal/engine/renderer/vulkan"
)

const vrsTexture = "textures/foveal.png"

type VRSGame struct {
	*engine.Game
	config *core.Config
	state  *vrsState
}

type vrsState struct {
	sys     *engine.Systems
	gaze    core.GazeProvider
	vrs     *vulkan.VRSComputePass
	forward *vulkan.ForwardPass
}

// NewVRSGame renders a textured fullscreen quad whose shading rate drops
// away from the gaze point. O toggles the rate overlay, P cycles the present
// mode.
func NewVRSGame(cfg *core.Config) *VRSGame {
	vg := &VRSGame{
		Game: &engine.Game{
			ApplicationConfig: engine.NewApplicationConfig(cfg),
		},
		config: cfg,
		state:  &vrsState{},
	}
	vg.State = vg.state

	vg.FnInitialize = vg.Initialize
	vg.FnOnEvent = vg.OnEvent
	vg.FnStatus = vg.Status
	return vg
}

func (g *VRSGame) Initialize(sys *engine.Systems) error {
	g.state.sys = sys
	cfg := g.config

	fragment := "forward.frag"
	if !cfg.VRS.Enabled {
		fragment = "textured.frag"
	}
	if err := sys.Assets.Preload(context.Background(), []string{"vrs_img.comp", "forward.vert", fragment}); err != nil {
		return err
	}

	if strings.ToLower(cfg.VRS.Gaze) == "fixed" {
		g.state.gaze = core.NewFixedGazeProvider(0.5, 0.5)
	} else {
		g.state.gaze = core.NewMouseGazeProvider(sys.Input, sys.Platform.WindowSize)
	}

	// Without hand-off semaphores both passes have to share a queue.
	queue := metadata.QUEUE_KIND_COMPUTE
	if cfg.Renderer.Handoff == core.HandoffQueueOrder {
		queue = metadata.QUEUE_KIND_GRAPHICS
	}

	vkContext := sys.Backend.Context()
	commands := sys.Renderer.Commands()
	var rateSource *vulkan.VRSComputePass
	if cfg.VRS.Enabled {
		rateSource = vulkan.NewVRSComputePass(vkContext, commands, vulkan.VRSComputePassConfig{
			Queue:        queue,
			Concurrency:  sys.Renderer.Concurrency(),
			TexelWidth:   cfg.VRS.TexelWidth,
			TexelHeight:  cfg.VRS.TexelHeight,
			FovealRadius: cfg.VRS.FovealRadius,
			Gaze:         g.state.gaze,
			Shaders:      sys.Assets,
		})
	}
	g.state.vrs = rateSource
	g.state.forward = vulkan.NewForwardPass(vkContext, commands, vulkan.ForwardPassConfig{
		VertexShader:   "forward.vert",
		FragmentShader: fragment,
		VertexCount:    6,
		ClearColor:     clearColor,
		Concurrency:    sys.Renderer.Concurrency(),
		Textured:       true,
		VRS:            rateSource,
		Overlay:        cfg.VRS.Overlay,
		Shaders:        sys.Assets,
	})

	primary := &renderer.RenderNode{Pass: g.state.forward}
	if rateSource != nil {
		// The forward pass binds the rate images, so they are created first.
		if err := sys.Renderer.RegisterDependent(rateSource); err != nil {
			return err
		}
		primary.DependsOn = []*renderer.RenderNode{{Pass: rateSource}}
	}
	if err := sys.Renderer.RegisterDependent(g.state.forward); err != nil {
		return err
	}
	if err := sys.Renderer.SetRenderGraph(primary); err != nil {
		return err
	}

	return g.loadTexture(vrsTexture)
}

// loadTexture decodes the image on the job system. The upload happens on
// the render thread once ASSET_LOADED is drained.
func (g *VRSGame) loadTexture(name string) error {
	sys := g.state.sys
	return sys.Jobs.Submit(metadata.JobTask{
		Name: core.NewName("texture"),
		Run: func() (interface{}, error) {
			return sys.Assets.LoadTexture(name, false)
		},
		OnComplete: func(result interface{}) {
			sys.Events.Push(core.Event{Code: core.EVENT_CODE_ASSET_LOADED, Path: name, Payload: result})
		},
		OnFailure: func(err error) {
			core.LogWarn("keeping the default texture: %s", err)
		},
	})
}

func (g *VRSGame) OnEvent(e core.Event) bool {
	switch e.Code {
	case core.EVENT_CODE_ASSET_LOADED:
		data, ok := e.Payload.(*metadata.TextureData)
		if !ok {
			return false
		}
		core.LogInfo("texture %s loaded (%dx%d)", e.Path, data.Width, data.Height)
		g.state.forward.SetTexture(data)
		g.state.sys.Renderer.RequestRecreation()
		return true
	case core.EVENT_CODE_KEY_PRESSED:
		switch e.KeyCode {
		case core.KEY_O:
			g.state.forward.SetOverlay(!g.state.forward.Overlay())
			return true
		case core.KEY_P:
			g.state.sys.Renderer.CyclePresentMode()
			return true
		}
	}
	return false
}

func (g *VRSGame) Status() string {
	if g.state.vrs == nil {
		return fmt.Sprintf("vrs off | %s", g.state.sys.Renderer.Swapchain().PresentMode)
	}
	gaze := g.state.vrs.LastGaze()
	tw, th := g.state.vrs.TexelSize()
	return fmt.Sprintf("gaze %.2f,%.2f | rate texel %dx%d | %s", gaze.PositionX, gaze.PositionY, tw, th, g.state.sys.Renderer.Swapchain().PresentMode)
}
