package renderer

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/foveal/engine/core"
	"github.com/spaghettifunk/foveal/engine/renderer/metadata"
)

// positions returns the timeline positions of every entry equal to e.
func positions(timeline []string, e string) []int {
	out := make([]int, 0)
	for i, have := range timeline {
		if have == e {
			out = append(out, i)
		}
	}
	return out
}

func TestSlotReuseWaitsForPreviousUse(t *testing.T) {
	// Two frames in flight over three swapchain images.
	rig := newTestRig(t, 2, 3, core.HandoffSemaphore)
	for i := 0; i < 3; i++ {
		require.NoError(t, rig.renderer.DrawFrame(0.016))
	}

	assert.Equal(t, []string{
		"record forward frame=0 slot=0",
		"record forward frame=1 slot=1",
		"record forward frame=2 slot=0",
	}, rig.backend.events("record forward"))

	// Frame 0 submitted #1 (vrs) and #2 (forward, slot 0 fence).
	waits := positions(rig.backend.timeline, "wait frame_fence_0")
	require.Len(t, waits, 2)
	frame2Wait := waits[1]
	assert.Less(t, rig.backend.indexOf(t, "complete #2"), frame2Wait, "frame 2 must observe frame 0 completion")
	for _, id := range []int{3, 4} {
		p := positions(rig.backend.timeline, fmt.Sprintf("complete #%d", id))
		if len(p) > 0 {
			assert.Greater(t, p[0], frame2Wait, "frame 1 work must still be in flight")
		}
	}
	assert.Equal(t, uint64(3), rig.renderer.Orchestrator().CurrentFrame())
	assert.Equal(t, FRAME_STATE_IDLE, rig.renderer.Orchestrator().State())
}

func TestAcquiredImageIndexInRange(t *testing.T) {
	rig := newTestRig(t, 2, 3, core.HandoffSemaphore)
	for i := 0; i < 10; i++ {
		require.NoError(t, rig.renderer.DrawFrame(0.016))
	}
	count := rig.renderer.Swapchain().ImageCount
	for _, idx := range rig.primary.images {
		assert.Less(t, idx, count)
	}
}

func TestOutOfDateAcquireRecreatesWithoutAdvancing(t *testing.T) {
	rig := newTestRig(t, 2, 3, core.HandoffSemaphore)
	dep := &mockDependent{name: "framebuffers", backend: rig.backend}
	require.NoError(t, rig.renderer.RegisterDependent(dep))

	rig.backend.acquireScript = []acquireResult{
		{index: 0, status: metadata.StatusSuccess},
		{status: metadata.StatusOutOfDate},
	}

	require.NoError(t, rig.renderer.DrawFrame(0.016))
	require.NoError(t, rig.renderer.DrawFrame(0.016))

	o := rig.renderer.Orchestrator()
	assert.Equal(t, uint64(1), o.CurrentFrame(), "the aborted frame does not count")
	assert.Equal(t, 2, rig.backend.swapchainsCreated)
	assert.Equal(t, 1, rig.backend.swapchainsDestroyed)
	assert.Len(t, dep.extents, 2)
	assert.Equal(t, []uint64{0}, rig.primary.frames)

	// The slot fence was re-armed, so the retry neither deadlocks nor skips.
	require.NoError(t, rig.renderer.DrawFrame(0.016))
	assert.Equal(t, uint64(2), o.CurrentFrame())
	assert.Equal(t, []uint64{0, 1}, rig.primary.frames)
	assert.Less(t, rig.primary.images[1], rig.renderer.Swapchain().ImageCount)
	assert.Equal(t, uint64(2), rig.renderer.Swapchain().Generation)
}

func TestSuboptimalPresentRecreatesBeforeNextAcquire(t *testing.T) {
	rig := newTestRig(t, 2, 3, core.HandoffSemaphore)
	rig.backend.presentScript = []metadata.Status{metadata.StatusSuboptimal}

	require.NoError(t, rig.renderer.DrawFrame(0.016))
	o := rig.renderer.Orchestrator()
	assert.Equal(t, uint64(1), o.CurrentFrame(), "the frame still completes")
	assert.True(t, o.RecreationPending())
	assert.Equal(t, 1, rig.backend.swapchainsCreated)

	require.NoError(t, rig.renderer.DrawFrame(0.016))
	assert.False(t, o.RecreationPending())
	assert.Equal(t, 2, rig.backend.swapchainsCreated)

	creates := positions(rig.backend.timeline, "create_swapchain 800x600")
	acquires := rig.backend.events("acquire")
	require.Len(t, creates, 2)
	require.Len(t, acquires, 2)
	secondAcquire := positions(rig.backend.timeline, acquires[1])
	assert.Less(t, creates[1], secondAcquire[len(secondAcquire)-1])
	assert.Equal(t, uint64(2), o.CurrentFrame())
}

func TestSuboptimalAcquireContinuesFrame(t *testing.T) {
	rig := newTestRig(t, 2, 3, core.HandoffSemaphore)
	rig.backend.acquireScript = []acquireResult{{index: 1, status: metadata.StatusSuboptimal}}

	require.NoError(t, rig.renderer.DrawFrame(0.016))
	assert.Equal(t, []uint32{1}, rig.primary.images)
	assert.True(t, rig.renderer.Orchestrator().RecreationPending())
	assert.Equal(t, []string{"present 1 success"}, rig.backend.events("present"))
}

func TestAuxiliaryHandsOffThroughSemaphore(t *testing.T) {
	rig := newTestRig(t, 2, 3, core.HandoffSemaphore)
	require.NoError(t, rig.renderer.DrawFrame(0.016))

	require.Len(t, rig.backend.submissions, 2)
	aux := rig.backend.submissions[0].info
	primary := rig.backend.submissions[1].info

	assert.Contains(t, aux.CommandBuffers[0].Name, "vrs")
	assert.Nil(t, aux.Fence)
	require.Len(t, aux.Signals, 1)

	slot := rig.renderer.Tracker().Slot(0)
	assert.Equal(t, []metadata.SemaphoreWait{
		{Semaphore: aux.Signals[0], Stage: metadata.PIPELINE_STAGE_ALL_COMMANDS},
		{Semaphore: slot.ImageAvailable, Stage: metadata.PIPELINE_STAGE_COLOR_ATTACHMENT_OUTPUT},
	}, primary.Waits)
	assert.Equal(t, []*metadata.Semaphore{slot.RenderFinished}, primary.Signals)
	assert.Same(t, slot.Fence, primary.Fence)

	// Every record precedes the submit of the same pass, vrs first.
	assert.Less(t, rig.backend.indexOf(t, "record vrs frame=0 slot=0"), rig.backend.indexOf(t, "record forward frame=0 slot=0"))
}

func TestQueueOrderHandoffSubmitsInProgramOrder(t *testing.T) {
	rig := newTestRig(t, 2, 3, core.HandoffQueueOrder)
	require.NoError(t, rig.renderer.DrawFrame(0.016))

	aux := rig.backend.submissions[0].info
	primary := rig.backend.submissions[1].info
	assert.Empty(t, aux.Signals)
	assert.Empty(t, aux.Waits)
	assert.Len(t, primary.Waits, 1)
	assert.Equal(t, metadata.QUEUE_KIND_GRAPHICS, aux.Queue)
}

func TestQueueOrderHandoffRejectsCrossQueue(t *testing.T) {
	backend := newMockBackend()
	r := New(backend, &mockWindow{extent: metadata.Extent{Width: 64, Height: 64}}, core.RendererSection{Handoff: core.HandoffQueueOrder, ConcurrentFrames: 2})
	require.NoError(t, r.Initialize())

	compute := &mockPass{name: "vrs", queue: metadata.QUEUE_KIND_COMPUTE, backend: backend}
	primary := &mockPass{name: "forward", queue: metadata.QUEUE_KIND_GRAPHICS, backend: backend}
	err := r.SetRenderGraph(&RenderNode{Pass: primary, DependsOn: []*RenderNode{{Pass: compute}}})
	assert.ErrorIs(t, err, core.ErrInvalidGraph)
}

func TestCrossQueueHandoffUsesPassWaitStage(t *testing.T) {
	backend := newMockBackend()
	r := New(backend, &mockWindow{extent: metadata.Extent{Width: 64, Height: 64}}, core.RendererSection{ConcurrentFrames: 2})
	require.NoError(t, r.Initialize())

	compute := &mockPass{name: "vrs", queue: metadata.QUEUE_KIND_COMPUTE, backend: backend}
	primary := &stagedPass{&mockPass{name: "forward", queue: metadata.QUEUE_KIND_GRAPHICS, backend: backend, stage: metadata.PIPELINE_STAGE_FRAGMENT_SHADER}}
	require.NoError(t, r.SetRenderGraph(&RenderNode{Pass: primary, DependsOn: []*RenderNode{{Pass: compute}}}))
	require.NoError(t, r.DrawFrame(0))

	aux := backend.submissions[0].info
	assert.Equal(t, metadata.QUEUE_KIND_COMPUTE, aux.Queue)
	assert.Equal(t, metadata.PIPELINE_STAGE_FRAGMENT_SHADER, backend.lastSubmit().Waits[0].Stage)
	assert.Same(t, aux.Signals[0], backend.lastSubmit().Waits[0].Semaphore)
}

func TestPrimaryMustUseGraphicsQueue(t *testing.T) {
	backend := newMockBackend()
	r := New(backend, &mockWindow{extent: metadata.Extent{Width: 64, Height: 64}}, core.RendererSection{ConcurrentFrames: 1})
	require.NoError(t, r.Initialize())

	err := r.SetRenderGraph(&RenderNode{Pass: &mockPass{name: "c", queue: metadata.QUEUE_KIND_COMPUTE, backend: backend}})
	assert.ErrorIs(t, err, core.ErrInvalidGraph)
}

func TestRenderGraphOrdering(t *testing.T) {
	pass := func(name string) *mockPass { return &mockPass{name: name} }
	c := &RenderNode{Pass: pass("c")}
	a := &RenderNode{Pass: pass("a"), DependsOn: []*RenderNode{c}}
	b := &RenderNode{Pass: pass("b"), DependsOn: []*RenderNode{c}}
	primary := &RenderNode{Pass: pass("primary"), DependsOn: []*RenderNode{a, b}}

	order, err := orderRenderGraph(primary)
	require.NoError(t, err)
	names := make([]string, 0, len(order))
	for _, n := range order {
		names = append(names, n.Pass.Name())
	}
	assert.Equal(t, []string{"c", "a", "b", "primary"}, names)

	// a -> b -> a
	x := &RenderNode{Pass: pass("x")}
	y := &RenderNode{Pass: pass("y"), DependsOn: []*RenderNode{x}}
	x.DependsOn = []*RenderNode{y}
	_, err = orderRenderGraph(&RenderNode{Pass: pass("p"), DependsOn: []*RenderNode{x}})
	assert.ErrorIs(t, err, core.ErrInvalidGraph)

	_, err = orderRenderGraph(nil)
	assert.ErrorIs(t, err, core.ErrInvalidGraph)
}

func TestDiamondGraphGetsOneSemaphorePerEdge(t *testing.T) {
	backend := newMockBackend()
	r := New(backend, &mockWindow{extent: metadata.Extent{Width: 64, Height: 64}}, core.RendererSection{ConcurrentFrames: 2})
	require.NoError(t, r.Initialize())
	before := backend.liveSemaphores

	mk := func(name string) *mockPass { return &mockPass{name: name, backend: backend} }
	c := &RenderNode{Pass: mk("c")}
	a := &RenderNode{Pass: mk("a"), DependsOn: []*RenderNode{c}}
	b := &RenderNode{Pass: mk("b"), DependsOn: []*RenderNode{c}}
	require.NoError(t, r.SetRenderGraph(&RenderNode{Pass: mk("primary"), DependsOn: []*RenderNode{a, b}}))

	// Four edges, two slots each.
	assert.Equal(t, before+8, backend.liveSemaphores)
	require.NoError(t, r.DrawFrame(0))
	assert.Len(t, backend.submissions[0].info.Signals, 2, "c feeds both a and b")

	require.NoError(t, r.Shutdown())
	assert.Equal(t, 0, backend.liveSemaphores)
}

func TestExtraSemaphoreDependencies(t *testing.T) {
	rig := newTestRig(t, 2, 3, core.HandoffSemaphore)
	o := rig.renderer.Orchestrator()
	upload := &metadata.Semaphore{Name: "upload"}
	o.SetExtraSemaphoreDependencyForFrame(upload, 1)
	o.SetExtraSemaphoreDependencyForFrame(upload, 1)

	assert.Len(t, o.FillInExtraSemaphoreDependenciesForFrame(nil, 1), 1)

	require.NoError(t, rig.renderer.DrawFrame(0))
	for _, w := range rig.backend.lastSubmit().Waits {
		assert.NotSame(t, upload, w.Semaphore)
	}

	require.NoError(t, rig.renderer.DrawFrame(0))
	waits := rig.backend.lastSubmit().Waits
	assert.Same(t, upload, waits[len(waits)-1].Semaphore)

	// Frame 1 may still be in flight at frame 2.
	require.NoError(t, rig.renderer.DrawFrame(0))
	assert.Equal(t, []uint64{1}, o.PendingDependencyFrames())

	// At frame 3 its slot fence has been waited on.
	require.NoError(t, rig.renderer.DrawFrame(0))
	assert.Empty(t, o.PendingDependencyFrames())

	o.SetExtraSemaphoreDependencyForFrame(upload, 10)
	assert.Equal(t, []*metadata.Semaphore{upload}, o.RemoveAllExtraSemaphoreDependenciesForFrame(10))
	assert.Empty(t, o.PendingDependencyFrames())
}

func TestExtraRenderFinishedSemaphoresAreSignaled(t *testing.T) {
	backend := newMockBackend()
	r := New(backend, &mockWindow{extent: metadata.Extent{Width: 64, Height: 64}}, core.RendererSection{ConcurrentFrames: 2, ExtraRenderFinishedSemaphores: 2})
	require.NoError(t, r.Initialize())
	require.NoError(t, r.SetRenderGraph(&RenderNode{Pass: &mockPass{name: "forward", backend: backend}}))
	require.NoError(t, r.DrawFrame(0))

	slot := r.Tracker().Slot(0)
	expected := append([]*metadata.Semaphore{slot.RenderFinished}, slot.ExtraRenderFinishedSemaphores...)
	assert.Equal(t, expected, backend.lastSubmit().Signals)
}

func TestDefaultConcurrencyIsImageCount(t *testing.T) {
	backend := newMockBackend()
	r := New(backend, &mockWindow{extent: metadata.Extent{Width: 64, Height: 64}}, core.RendererSection{PresentableImages: 4})
	require.NoError(t, r.Initialize())
	assert.Equal(t, uint32(4), r.Concurrency())
}

func TestFatalErrorsPropagate(t *testing.T) {
	rig := newTestRig(t, 2, 3, core.HandoffSemaphore)
	rig.backend.submitErr = errors.New("VK_ERROR_DEVICE_LOST")

	err := rig.renderer.DrawFrame(0)
	require.Error(t, err)
	assert.True(t, core.IsFatal(err))
	assert.Contains(t, err.Error(), "vkQueueSubmit")
	assert.Equal(t, uint64(0), rig.renderer.Orchestrator().CurrentFrame())

	rig2 := newTestRig(t, 2, 3, core.HandoffSemaphore)
	rig2.backend.acquireScript = []acquireResult{{err: errors.New("VK_ERROR_SURFACE_LOST_KHR")}}
	err = rig2.renderer.DrawFrame(0)
	assert.True(t, core.IsFatal(err))
	assert.Equal(t, 1, rig2.backend.swapchainsCreated, "fatal errors are never retried")

	rig3 := newTestRig(t, 2, 3, core.HandoffSemaphore)
	rig3.primary.err = errors.New("bad pipeline")
	err = rig3.renderer.DrawFrame(0)
	assert.True(t, core.IsFatal(err))
	assert.Contains(t, err.Error(), "forward")
}

func TestDrawFrameWithoutGraph(t *testing.T) {
	backend := newMockBackend()
	r := New(backend, &mockWindow{extent: metadata.Extent{Width: 64, Height: 64}}, core.RendererSection{ConcurrentFrames: 1})
	require.NoError(t, r.Initialize())
	assert.Error(t, r.DrawFrame(0))
}

func TestFenceWaitIsMeasured(t *testing.T) {
	rig := newTestRig(t, 2, 3, core.HandoffSemaphore)
	assert.Equal(t, time.Duration(0), rig.renderer.FenceWait())

	rig.backend.fenceDelay = 5 * time.Millisecond
	require.NoError(t, rig.renderer.DrawFrame(0.016))

	wait := rig.renderer.FenceWait()
	assert.GreaterOrEqual(t, wait, 5*time.Millisecond)
	assert.Equal(t, wait, rig.renderer.Orchestrator().FenceWait())

	rig.backend.fenceDelay = 0
	require.NoError(t, rig.renderer.DrawFrame(0.016))
	assert.Less(t, rig.renderer.FenceWait(), wait)
}

func TestReplacingRenderGraphFreesOldCommandBuffers(t *testing.T) {
	rig := newTestRig(t, 2, 3, core.HandoffSemaphore)
	require.NoError(t, rig.renderer.DrawFrame(0.016))
	// Two nodes with one buffer per slot.
	assert.Equal(t, 4, rig.backend.liveBuffers)
	semaphores := rig.backend.liveSemaphores

	primary := &mockPass{name: "triangle", queue: metadata.QUEUE_KIND_GRAPHICS, backend: rig.backend}
	require.NoError(t, rig.renderer.SetRenderGraph(&RenderNode{Pass: primary}))
	assert.Equal(t, 2, rig.backend.liveBuffers)
	// The two per-slot hand-off semaphores of the vrs to forward edge.
	assert.Equal(t, semaphores-2, rig.backend.liveSemaphores)

	for i := 0; i < 3; i++ {
		require.NoError(t, rig.renderer.DrawFrame(0.016))
	}
	for _, e := range rig.backend.events("reset_buffer") {
		assert.True(t, strings.HasPrefix(e, "reset_buffer triangle-"), e)
	}
	assert.Len(t, primary.frames, 3)

	require.NoError(t, rig.renderer.Shutdown())
	assert.Equal(t, 0, rig.backend.liveBuffers)
}
