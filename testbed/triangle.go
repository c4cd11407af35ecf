package testbed

import (
	"context"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/foveal/engine"
	"github.com/spaghettifunk/foveal/engine/core"
	"github.com/spaghettifunk/foveal/engine/renderer"
	"github.com/spaghettifunk/foveal/engine/renderer/vulkan"
)

// Radians per second.
const triangleSpeed = 0.8

type TriangleGame struct {
	*engine.Game
	state *triangleState
}

type triangleState struct {
	renderer *renderer.Renderer
	forward  *vulkan.ForwardPass
	angle    float32
	paused   bool
}

// NewTriangleGame draws a single rotating triangle. Space pauses the
// rotation, P cycles the present mode.
func NewTriangleGame(cfg *core.Config) *TriangleGame {
	tg := &TriangleGame{
		Game: &engine.Game{
			ApplicationConfig: engine.NewApplicationConfig(cfg),
		},
		state: &triangleState{},
	}
	tg.State = tg.state

	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnOnEvent = tg.OnEvent
	tg.FnStatus = tg.Status
	return tg
}

func (g *TriangleGame) Initialize(sys *engine.Systems) error {
	g.state.renderer = sys.Renderer
	if err := sys.Assets.Preload(context.Background(), []string{"triangle.vert", "triangle.frag"}); err != nil {
		return err
	}

	g.state.forward = vulkan.NewForwardPass(sys.Backend.Context(), sys.Renderer.Commands(), vulkan.ForwardPassConfig{
		VertexShader:   "triangle.vert",
		FragmentShader: "triangle.frag",
		VertexCount:    3,
		ClearColor:     clearColor,
		Concurrency:    sys.Renderer.Concurrency(),
		Transform:      g.transform,
		Shaders:        sys.Assets,
	})
	if err := sys.Renderer.RegisterDependent(g.state.forward); err != nil {
		return err
	}
	return sys.Renderer.SetRenderGraph(&renderer.RenderNode{Pass: g.state.forward})
}

func (g *TriangleGame) Update(deltaTime float64) error {
	if !g.state.paused {
		g.state.angle += float32(deltaTime) * triangleSpeed
	}
	return nil
}

func (g *TriangleGame) OnEvent(e core.Event) bool {
	if e.Code != core.EVENT_CODE_KEY_PRESSED {
		return false
	}
	switch e.KeyCode {
	case core.KEY_SPACE:
		g.state.paused = !g.state.paused
		return true
	case core.KEY_P:
		g.state.renderer.CyclePresentMode()
		return true
	}
	return false
}

func (g *TriangleGame) Status() string {
	mode := g.state.renderer.Swapchain().PresentMode.String()
	if g.state.paused {
		return "paused | " + mode
	}
	return mode
}

// transform keeps the triangle undistorted whatever the window aspect.
func (g *TriangleGame) transform(_ *renderer.FrameContext, aspect float32) mgl32.Mat4 {
	return mgl32.Scale3D(1/aspect, 1, 1).Mul4(mgl32.HomogRotate3DZ(g.state.angle))
}
