package platform

import (
	"runtime"

	"github.com/go-gl/glfw/v3.3/glfw"

	"github.com/spaghettifunk/foveal/engine/core"
	"github.com/spaghettifunk/foveal/engine/renderer/metadata"
)

func init() {
	// GLFW event handling must run on the main OS thread
	runtime.LockOSThread()
}

// Platform owns the GLFW window. Callbacks only translate GLFW input into
// core events; the engine drains them once per frame.
type Platform struct {
	Window *glfw.Window

	events    *core.EventQueue
	startTime float64
}

func New(events *core.EventQueue) (*Platform, error) {
	return &Platform{
		Window: nil,
		events: events,
	}, nil
}

func (p *Platform) Startup(applicationName string, x int32, y int32, width uint32, height uint32) error {
	if err := glfw.Init(); err != nil {
		core.LogError("failed to initialize glfw: %s", err)
		return core.MarkFatal(err, "glfwInit")
	}
	if !glfw.VulkanSupported() {
		glfw.Terminate()
		err := core.NewFatalError("glfwVulkanSupported", "no Vulkan loader found")
		core.LogError("%s", err)
		return err
	}

	glfw.WindowHint(glfw.Visible, glfw.False)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI) // Required for Vulkan.

	window, err := glfw.CreateWindow(int(width), int(height), applicationName, nil, nil)
	if err != nil {
		glfw.Terminate()
		core.LogError("failed to create window: %s", err)
		return core.MarkFatal(err, "glfwCreateWindow")
	}
	p.Window = window

	p.Window.SetKeyCallback(p.keyCallback)
	p.Window.SetMouseButtonCallback(p.mouseButtonCallback)
	p.Window.SetCursorPosCallback(p.cursorPosCallback)
	p.Window.SetScrollCallback(p.scrollCallback)
	p.Window.SetFramebufferSizeCallback(p.framebufferSizeCallback)
	p.Window.SetCloseCallback(p.closeCallback)
	p.Window.SetPos(int(x), int(y))
	p.Window.Show()

	p.startTime = glfw.GetTime()
	return nil
}

func (p *Platform) Shutdown() error {
	if p.Window != nil {
		p.Window.Destroy()
		p.Window = nil
	}
	glfw.Terminate()
	return nil
}

// PumpMessages polls GLFW, the callbacks run from here.
func (p *Platform) PumpMessages() {
	glfw.PollEvents()
}

// GetAbsoluteTime is the number of seconds since Startup.
func (p *Platform) GetAbsoluteTime() float64 {
	return glfw.GetTime() - p.startTime
}

// GetRequiredExtensionNames lists the instance extensions needed to create
// a surface for the window.
func (p *Platform) GetRequiredExtensionNames() []string {
	return p.Window.GetRequiredInstanceExtensions()
}

func (p *Platform) SetTitle(title string) {
	p.Window.SetTitle(title)
}

func (p *Platform) FramebufferExtent() metadata.Extent {
	w, h := p.Window.GetFramebufferSize()
	if w < 0 || h < 0 {
		return metadata.Extent{}
	}
	return metadata.Extent{Width: uint32(w), Height: uint32(h)}
}

// WindowSize is the client area in screen coordinates, the space cursor
// positions are reported in.
func (p *Platform) WindowSize() metadata.Extent {
	w, h := p.Window.GetSize()
	if w < 0 || h < 0 {
		return metadata.Extent{}
	}
	return metadata.Extent{Width: uint32(w), Height: uint32(h)}
}

func (p *Platform) ShouldClose() bool {
	return p.Window.ShouldClose()
}

// WaitEvents blocks until GLFW has an event, used while minimized.
func (p *Platform) WaitEvents() {
	glfw.WaitEvents()
}

// RequestClose makes ShouldClose report true, e.g. on SIGTERM. Safe to call
// from any goroutine.
func (p *Platform) RequestClose() {
	glfw.PostEmptyEvent()
	p.events.Push(core.Event{Code: core.EVENT_CODE_APPLICATION_QUIT})
}

func (p *Platform) keyCallback(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
	code, ok := translateKey(key)
	if !ok {
		return
	}
	switch action {
	case glfw.Press, glfw.Repeat:
		p.events.Push(core.Event{Code: core.EVENT_CODE_KEY_PRESSED, KeyCode: code})
	case glfw.Release:
		p.events.Push(core.Event{Code: core.EVENT_CODE_KEY_RELEASED, KeyCode: code})
	}
}

func (p *Platform) mouseButtonCallback(w *glfw.Window, button glfw.MouseButton, action glfw.Action, mods glfw.ModifierKey) {
	var b core.Button
	switch button {
	case glfw.MouseButtonLeft:
		b = core.BUTTON_LEFT
	case glfw.MouseButtonRight:
		b = core.BUTTON_RIGHT
	case glfw.MouseButtonMiddle:
		b = core.BUTTON_MIDDLE
	default:
		return
	}
	code := core.EVENT_CODE_BUTTON_PRESSED
	if action == glfw.Release {
		code = core.EVENT_CODE_BUTTON_RELEASED
	}
	p.events.Push(core.Event{Code: code, Button: b})
}

func (p *Platform) cursorPosCallback(w *glfw.Window, xpos, ypos float64) {
	p.events.Push(core.Event{Code: core.EVENT_CODE_MOUSE_MOVED, X: xpos, Y: ypos})
}

func (p *Platform) scrollCallback(w *glfw.Window, xoff, yoff float64) {
	p.events.Push(core.Event{Code: core.EVENT_CODE_MOUSE_WHEEL, X: xoff, Y: yoff})
}

func (p *Platform) framebufferSizeCallback(w *glfw.Window, width, height int) {
	p.events.Push(core.Event{Code: core.EVENT_CODE_RESIZED, Width: uint32(width), Height: uint32(height)})
}

func (p *Platform) closeCallback(w *glfw.Window) {
	p.events.Push(core.Event{Code: core.EVENT_CODE_APPLICATION_QUIT})
}
