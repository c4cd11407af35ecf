package engine

import (
	"fmt"
	"runtime"

	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/foveal/engine/assets"
	"github.com/spaghettifunk/foveal/engine/core"
	"github.com/spaghettifunk/foveal/engine/platform"
	"github.com/spaghettifunk/foveal/engine/renderer"
	"github.com/spaghettifunk/foveal/engine/renderer/metadata"
	"github.com/spaghettifunk/foveal/engine/renderer/vulkan"
	"github.com/spaghettifunk/foveal/engine/systems"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently booting up
	EngineStageBooting
	// Engine completed boot process and is ready to be initialized
	EngineStageBootComplete
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

const jobQueueSize = 32

type Engine struct {
	currentStage Stage
	gameInstance *Game
	config       *core.Config
	isRunning    bool
	isSuspended  bool

	events       *core.EventQueue
	input        *core.Input
	platform     *platform.Platform
	assetManager *assets.AssetManager
	jobSystem    *systems.JobSystem
	backend      *vulkan.VulkanRenderer
	renderer     *renderer.Renderer

	clock    *core.Clock
	metrics  *core.Metrics
	lastTime float64
}

// New builds every subsystem without touching the window or the GPU.
func New(g *Game) (*Engine, error) {
	e := &Engine{
		currentStage: EngineStageBooting,
		gameInstance: g,
		config:       g.ApplicationConfig.Config,
		clock:        core.NewClock(),
		metrics:      core.NewMetrics(),
		input:        core.NewInput(),
		events:       core.NewEventQueue(core.DefaultEventQueueSize),
	}
	core.SetLogLevel(g.ApplicationConfig.LogLevel)

	p, err := platform.New(e.events)
	if err != nil {
		core.LogError("%s", err)
		return nil, err
	}
	e.platform = p
	e.assetManager = assets.NewAssetManager(e.config.Assets.Dir, e.events)

	workers := runtime.NumCPU() - 1
	if workers < 1 {
		workers = 1
	}
	js, err := systems.NewJobSystem(workers, jobQueueSize)
	if err != nil {
		core.LogError("%s", err)
		return nil, err
	}
	e.jobSystem = js

	e.backend = vulkan.New(p, metadata.RendererBackendConfig{
		ApplicationName:  g.ApplicationConfig.Name,
		EnableValidation: e.config.Renderer.Validation,
	})
	e.renderer = renderer.New(e.backend, p, e.config.Renderer)

	e.currentStage = EngineStageBootComplete
	return e, nil
}

func (e *Engine) Initialize() error {
	e.currentStage = EngineStageInitializing
	app := e.gameInstance.ApplicationConfig

	if err := e.platform.Startup(app.Name, app.StartPosX, app.StartPosY, app.StartWidth, app.StartHeight); err != nil {
		return err
	}
	if err := e.assetManager.Initialize(e.config.Assets.Watch); err != nil {
		return err
	}
	if err := e.backend.Initialize(); err != nil {
		return err
	}
	if err := e.renderer.Initialize(); err != nil {
		return err
	}

	if err := e.gameInstance.FnInitialize(e.Systems()); err != nil {
		return err
	}

	extent := e.platform.FramebufferExtent()
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(extent.Width, extent.Height); err != nil {
			return err
		}
	}
	e.currentStage = EngineStageInitialized
	return nil
}

func (e *Engine) Systems() *Systems {
	return &Systems{
		Config:   e.config,
		Platform: e.platform,
		Backend:  e.backend,
		Renderer: e.renderer,
		Assets:   e.assetManager,
		Jobs:     e.jobSystem,
		Events:   e.events,
		Input:    e.input,
	}
}

// Stop asks the loop to exit after the current frame. Safe to call from any
// goroutine.
func (e *Engine) Stop() {
	e.platform.RequestClose()
}

func (e *Engine) Run() error {
	e.currentStage = EngineStageRunning
	e.isRunning = true
	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()

	for e.isRunning {
		e.platform.PumpMessages()
		e.events.Drain(e.onEvent)
		if e.platform.ShouldClose() {
			e.isRunning = false
		}
		if !e.isRunning {
			break
		}

		if e.isSuspended {
			e.platform.WaitEvents()
			continue
		}

		// Update clock and get delta time.
		e.clock.Update()
		currentTime := e.clock.Elapsed()
		delta := currentTime - e.lastTime

		if e.gameInstance.FnUpdate != nil {
			if err := e.gameInstance.FnUpdate(delta); err != nil {
				core.LogError("game update failed, shutting down: %s", err)
				return err
			}
		}

		if err := e.renderer.DrawFrame(delta); err != nil {
			if errors.Is(err, core.ErrWindowClosed) {
				core.LogInfo("window closed during recreation")
				break
			}
			core.LogError("draw frame failed, shutting down: %s", err)
			return err
		}

		e.metrics.RecordFenceWait(e.renderer.FenceWait())
		if e.metrics.Update(delta) {
			e.reportMetrics()
		}

		// NOTE: Input update/state copying should always be handled
		// after any input should be recorded; I.E. before this line.
		e.input.Update()
		e.lastTime = currentTime
	}
	return nil
}

func (e *Engine) reportMetrics() {
	fps, ms := e.metrics.Frame()
	title := fmt.Sprintf("%s | %.0f fps | %.2f ms | gpu wait %.2f ms", e.gameInstance.ApplicationConfig.Name, fps, ms, e.metrics.FenceWait())
	if e.gameInstance.FnStatus != nil {
		if status := e.gameInstance.FnStatus(); status != "" {
			title = fmt.Sprintf("%s | %s", title, status)
		}
	}
	e.platform.SetTitle(title)
	core.LogDebug("%s", title)
	if dropped := e.events.Dropped(); dropped > 0 {
		core.LogDebug("%d events dropped so far", dropped)
	}
}

func (e *Engine) onEvent(ev core.Event) {
	e.input.Apply(ev)
	if e.gameInstance.FnOnEvent != nil && e.gameInstance.FnOnEvent(ev) {
		return
	}

	switch ev.Code {
	case core.EVENT_CODE_APPLICATION_QUIT:
		core.LogInfo("EVENT_CODE_APPLICATION_QUIT received, shutting down")
		e.isRunning = false
	case core.EVENT_CODE_KEY_PRESSED:
		if ev.KeyCode == core.KEY_ESCAPE {
			e.isRunning = false
		}
	case core.EVENT_CODE_RESIZED:
		e.onResized(ev.Width, ev.Height)
	case core.EVENT_CODE_SHADER_CHANGED:
		core.LogInfo("reloading pipelines after %s changed", ev.Path)
		e.renderer.RequestRecreation()
	}
}

func (e *Engine) onResized(width, height uint32) {
	if width == 0 || height == 0 {
		if !e.isSuspended {
			core.LogInfo("window minimized, suspending")
		}
		e.isSuspended = true
		return
	}
	if e.isSuspended {
		core.LogInfo("window restored, resuming")
		e.isSuspended = false
	}
	e.renderer.OnResize(width, height)
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(width, height); err != nil {
			core.LogWarn("game resize handler failed: %s", err)
		}
	}
}

// Shutdown tears everything down in reverse creation order. GPU work is
// drained by the renderer before anything it uses is destroyed.
func (e *Engine) Shutdown() error {
	e.currentStage = EngineStageShuttingDown
	var errs error
	record := func(err error) {
		if err != nil {
			errs = errors.CombineErrors(errs, err)
		}
	}

	// Pending decodes may still push events, let them finish first.
	record(e.jobSystem.Shutdown())
	if e.gameInstance.FnShutdown != nil {
		record(e.gameInstance.FnShutdown())
	}
	record(e.renderer.Shutdown())
	record(e.backend.Shutdown())
	record(e.assetManager.Shutdown())
	record(e.platform.Shutdown())

	e.currentStage = EngineStageUninitialized
	return errs
}
