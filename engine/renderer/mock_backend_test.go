package renderer

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/foveal/engine/core"
	"github.com/spaghettifunk/foveal/engine/renderer/metadata"
)

type acquireResult struct {
	index  uint32
	status metadata.Status
	err    error
}

type mockSubmission struct {
	id   int
	info metadata.SubmitInfo
	done bool
}

// mockBackend simulates a GPU that only makes progress when the CPU waits
// on it, and records everything that happens in a timeline.
type mockBackend struct {
	timeline []string

	support metadata.SurfaceSupport

	acquireScript []acquireResult
	presentScript []metadata.Status
	submitErr     error
	nextImage     uint32
	// Simulated GPU latency for every fence wait.
	fenceDelay time.Duration

	submissions []*mockSubmission
	nextID      int

	swapchainsCreated   int
	swapchainsDestroyed int
	liveFences          int
	liveSemaphores      int
	livePools           int
	liveBuffers         int
	waitIdleCalls       int
}

func newMockBackend() *mockBackend {
	return &mockBackend{
		support: metadata.SurfaceSupport{
			Capabilities: metadata.SurfaceCapabilities{
				MinImageCount:  2,
				MaxImageCount:  8,
				CurrentExtent:  metadata.Extent{Width: metadata.UndefinedExtent, Height: metadata.UndefinedExtent},
				MinImageExtent: metadata.Extent{Width: 1, Height: 1},
				MaxImageExtent: metadata.Extent{Width: 4096, Height: 4096},
			},
			Formats: []metadata.SurfaceFormat{
				{Format: metadata.FormatB8G8R8A8Unorm, ColorSpace: metadata.ColorSpaceSrgbNonlinear},
				{Format: metadata.FormatB8G8R8A8Srgb, ColorSpace: metadata.ColorSpaceSrgbNonlinear},
			},
			PresentModes: []metadata.PresentMode{metadata.PresentModeFifo, metadata.PresentModeMailbox},
		},
	}
}

func (m *mockBackend) log(format string, args ...interface{}) {
	m.timeline = append(m.timeline, fmt.Sprintf(format, args...))
}

// events returns the timeline entries starting with any of the prefixes.
func (m *mockBackend) events(prefixes ...string) []string {
	out := make([]string, 0)
	for _, e := range m.timeline {
		for _, p := range prefixes {
			if strings.HasPrefix(e, p) {
				out = append(out, e)
				break
			}
		}
	}
	return out
}

// indexOf returns the position of the first timeline entry equal to e.
func (m *mockBackend) indexOf(t *testing.T, e string) int {
	t.Helper()
	for i, have := range m.timeline {
		if have == e {
			return i
		}
	}
	require.Failf(t, "missing timeline entry", "%q not in %v", e, m.timeline)
	return -1
}

func (m *mockBackend) QuerySurfaceSupport() (*metadata.SurfaceSupport, error) {
	s := m.support
	return &s, nil
}

func (m *mockBackend) CreateSwapchain(config metadata.SwapchainConfig) (*metadata.SwapchainState, error) {
	m.swapchainsCreated++
	m.nextImage = 0
	m.log("create_swapchain %s", config.Extent)
	state := &metadata.SwapchainState{
		Format:       config.Format,
		PresentMode:  config.PresentMode,
		Extent:       config.Extent,
		ImageCount:   config.ImageCount,
		InternalData: m.swapchainsCreated,
	}
	for i := uint32(0); i < config.ImageCount; i++ {
		state.Images = append(state.Images, i)
		state.ImageViews = append(state.ImageViews, i)
	}
	return state, nil
}

func (m *mockBackend) DestroySwapchain(state *metadata.SwapchainState) error {
	m.swapchainsDestroyed++
	m.log("destroy_swapchain %d", state.Generation)
	return nil
}

func (m *mockBackend) AcquireNextImage(state *metadata.SwapchainState, signal *metadata.Semaphore) (uint32, metadata.Status, error) {
	if len(m.acquireScript) > 0 {
		r := m.acquireScript[0]
		m.acquireScript = m.acquireScript[1:]
		m.log("acquire %d %s", r.index, r.status)
		return r.index, r.status, r.err
	}
	idx := m.nextImage % state.ImageCount
	m.nextImage++
	m.log("acquire %d %s", idx, metadata.StatusSuccess)
	return idx, metadata.StatusSuccess, nil
}

func (m *mockBackend) Present(state *metadata.SwapchainState, imageIndex uint32, wait []*metadata.Semaphore) (metadata.Status, error) {
	status := metadata.StatusSuccess
	if len(m.presentScript) > 0 {
		status = m.presentScript[0]
		m.presentScript = m.presentScript[1:]
	}
	m.log("present %d %s", imageIndex, status)
	return status, nil
}

func (m *mockBackend) CreateFence(name string, signaled bool) (*metadata.Fence, error) {
	m.liveFences++
	return &metadata.Fence{Name: name, IsSignaled: signaled}, nil
}

func (m *mockBackend) WaitForFence(fence *metadata.Fence, timeout uint64) error {
	if m.fenceDelay > 0 {
		time.Sleep(m.fenceDelay)
	}
	for _, s := range m.submissions {
		if fence.IsSignaled {
			break
		}
		if !s.done {
			m.complete(s)
		}
	}
	if !fence.IsSignaled {
		return errors.Newf("deadlock: %s is never signaled", fence.Name)
	}
	m.log("wait %s", fence.Name)
	return nil
}

func (m *mockBackend) complete(s *mockSubmission) {
	s.done = true
	if s.info.Fence != nil {
		s.info.Fence.IsSignaled = true
	}
	m.log("complete #%d", s.id)
}

func (m *mockBackend) ResetFence(fence *metadata.Fence) error {
	fence.IsSignaled = false
	m.log("reset %s", fence.Name)
	return nil
}

func (m *mockBackend) DestroyFence(fence *metadata.Fence) {
	m.liveFences--
}

func (m *mockBackend) CreateSemaphore(name string) (*metadata.Semaphore, error) {
	m.liveSemaphores++
	return &metadata.Semaphore{Name: name}, nil
}

func (m *mockBackend) DestroySemaphore(semaphore *metadata.Semaphore) {
	m.liveSemaphores--
}

func (m *mockBackend) CreateCommandPool(name string, queue metadata.QueueKind, usage metadata.CommandPoolUsage) (*metadata.CommandPool, error) {
	m.livePools++
	m.log("create_pool %s", name)
	return &metadata.CommandPool{Name: name, Queue: queue, Usage: usage}, nil
}

func (m *mockBackend) DestroyCommandPool(pool *metadata.CommandPool) {
	m.livePools--
}

func (m *mockBackend) AllocateCommandBuffers(pool *metadata.CommandPool, count uint32) ([]*metadata.CommandBuffer, error) {
	out := make([]*metadata.CommandBuffer, count)
	for i := range out {
		out[i] = &metadata.CommandBuffer{}
	}
	m.liveBuffers += int(count)
	return out, nil
}

func (m *mockBackend) FreeCommandBuffers(pool *metadata.CommandPool, buffers []*metadata.CommandBuffer) {
	m.liveBuffers -= len(buffers)
}

func (m *mockBackend) BeginCommandBuffer(buffer *metadata.CommandBuffer, singleUse bool) error {
	return nil
}

func (m *mockBackend) EndCommandBuffer(buffer *metadata.CommandBuffer) error {
	return nil
}

func (m *mockBackend) ResetCommandBuffer(buffer *metadata.CommandBuffer) error {
	m.log("reset_buffer %s", buffer.Name)
	return nil
}

func (m *mockBackend) Submit(info *metadata.SubmitInfo) error {
	if m.submitErr != nil {
		return m.submitErr
	}
	m.nextID++
	s := &mockSubmission{id: m.nextID, info: *info}
	m.submissions = append(m.submissions, s)
	if info.Fence != nil {
		info.Fence.IsSignaled = false
	}

	names := make([]string, 0, len(info.CommandBuffers))
	for _, b := range info.CommandBuffers {
		names = append(names, b.Name)
	}
	fence := "-"
	if info.Fence != nil {
		fence = info.Fence.Name
	}
	m.log("submit #%d %s [%s] fence=%s", s.id, info.Queue, strings.Join(names, ","), fence)
	return nil
}

func (m *mockBackend) QueueWaitIdle(queue metadata.QueueKind) error {
	m.completeAll()
	return nil
}

func (m *mockBackend) WaitIdle() error {
	m.waitIdleCalls++
	m.completeAll()
	m.log("wait_idle")
	return nil
}

func (m *mockBackend) completeAll() {
	for _, s := range m.submissions {
		if !s.done {
			m.complete(s)
		}
	}
}

// lastSubmit returns the most recent submission recorded by the mock.
func (m *mockBackend) lastSubmit() metadata.SubmitInfo {
	return m.submissions[len(m.submissions)-1].info
}

type mockWindow struct {
	extent      metadata.Extent
	pending     []metadata.Extent
	shouldClose bool
	waits       int
}

func (w *mockWindow) FramebufferExtent() metadata.Extent {
	return w.extent
}

func (w *mockWindow) ShouldClose() bool {
	return w.shouldClose
}

func (w *mockWindow) WaitEvents() {
	w.waits++
	if len(w.pending) > 0 {
		w.extent = w.pending[0]
		w.pending = w.pending[1:]
	}
}

type mockPass struct {
	name    string
	queue   metadata.QueueKind
	backend *mockBackend
	stage   metadata.PipelineStage
	err     error
	frames  []uint64
	images  []uint32
}

func (p *mockPass) Name() string              { return p.name }
func (p *mockPass) Queue() metadata.QueueKind { return p.queue }

func (p *mockPass) Record(ctx *FrameContext, buffer *metadata.CommandBuffer) error {
	if p.err != nil {
		return p.err
	}
	p.frames = append(p.frames, ctx.Frame)
	p.images = append(p.images, ctx.ImageIndex)
	p.backend.log("record %s frame=%d slot=%d", p.name, ctx.Frame, ctx.Slot)
	return nil
}

type stagedPass struct {
	*mockPass
}

func (p *stagedPass) HandoffWaitStage() metadata.PipelineStage {
	return p.stage
}

type mockDependent struct {
	name    string
	backend *mockBackend
	extents []metadata.Extent
	live    bool
}

func (d *mockDependent) Create(state *metadata.SwapchainState) error {
	d.live = true
	d.extents = append(d.extents, state.Extent)
	d.backend.log("create %s", d.name)
	return nil
}

func (d *mockDependent) Destroy() error {
	d.live = false
	d.backend.log("destroy %s", d.name)
	return nil
}

type testRig struct {
	backend  *mockBackend
	window   *mockWindow
	renderer *Renderer
	primary  *mockPass
	aux      *mockPass
}

// newTestRig builds an initialized renderer with a primary pass depending
// on one auxiliary pass.
func newTestRig(t *testing.T, concurrency, images uint32, handoff core.HandoffMode) *testRig {
	t.Helper()
	backend := newMockBackend()
	window := &mockWindow{extent: metadata.Extent{Width: 800, Height: 600}}

	cfg := core.DefaultConfig().Renderer
	cfg.ConcurrentFrames = concurrency
	cfg.PresentableImages = images
	cfg.Handoff = handoff
	cfg.DebugChecks = true

	r := New(backend, window, cfg)
	require.NoError(t, r.Initialize())

	aux := &mockPass{name: "vrs", queue: metadata.QUEUE_KIND_GRAPHICS, backend: backend}
	primary := &mockPass{name: "forward", queue: metadata.QUEUE_KIND_GRAPHICS, backend: backend}
	require.NoError(t, r.SetRenderGraph(&RenderNode{
		Pass:      primary,
		DependsOn: []*RenderNode{{Pass: aux}},
	}))

	return &testRig{
		backend:  backend,
		window:   window,
		renderer: r,
		primary:  primary,
		aux:      aux,
	}
}
