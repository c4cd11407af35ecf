package renderer

import (
	"fmt"
	"time"

	"github.com/spaghettifunk/foveal/engine/core"
	"github.com/spaghettifunk/foveal/engine/renderer/metadata"
)

// FrameContext is what a pass needs to record its commands for one frame.
type FrameContext struct {
	Frame      uint64
	Slot       uint32
	ImageIndex uint32
	Swapchain  *metadata.SwapchainState
	DeltaTime  float64
}

// PassRenderer records the commands of one render node.
type PassRenderer interface {
	Name() string
	Queue() metadata.QueueKind
	Record(ctx *FrameContext, buffer *metadata.CommandBuffer) error
}

// HandoffWaitStager is implemented by passes that want to wait on the
// output of their dependencies at a specific pipeline stage instead of
// PIPELINE_STAGE_ALL_COMMANDS.
type HandoffWaitStager interface {
	HandoffWaitStage() metadata.PipelineStage
}

// RenderNode is a pass together with the passes whose output it consumes.
// All dependencies of a node are submitted before the node itself.
type RenderNode struct {
	Pass      PassRenderer
	DependsOn []*RenderNode
}

type FrameState int

const (
	FRAME_STATE_IDLE FrameState = iota
	FRAME_STATE_WAIT_FOR_SLOT
	FRAME_STATE_ACQUIRE_IMAGE
	FRAME_STATE_RECORD_AUXILIARY
	FRAME_STATE_RECORD_PRIMARY
	FRAME_STATE_SUBMIT
	FRAME_STATE_PRESENT
)

func (s FrameState) String() string {
	switch s {
	case FRAME_STATE_IDLE:
		return "idle"
	case FRAME_STATE_WAIT_FOR_SLOT:
		return "wait_for_slot"
	case FRAME_STATE_ACQUIRE_IMAGE:
		return "acquire_image"
	case FRAME_STATE_RECORD_AUXILIARY:
		return "record_auxiliary"
	case FRAME_STATE_RECORD_PRIMARY:
		return "record_primary"
	case FRAME_STATE_SUBMIT:
		return "submit"
	case FRAME_STATE_PRESENT:
		return "present"
	}
	return "unknown"
}

type edge struct {
	producer *RenderNode
	consumer *RenderNode
}

// Orchestrator drives one frame at a time: wait for the slot, acquire,
// record and submit every node in dependency order, present.
type Orchestrator struct {
	surface    *PresentationSurface
	tracker    *FrameSyncTracker
	commands   *CommandStreamManager
	recreation *RecreationCoordinator
	sync       SyncBackend
	handoff    core.HandoffMode

	primary *RenderNode
	// Dependencies first, primary last.
	order []*RenderNode
	sets  map[*RenderNode]*CommandBufferSet
	// One semaphore per slot for every producer to consumer edge.
	handoffs map[edge][]*metadata.Semaphore
	incoming map[*RenderNode][]*RenderNode
	outgoing map[*RenderNode][]*RenderNode

	deps *semaphoreDependencies

	frame             uint64
	state             FrameState
	recreationPending bool
	// Time the CPU spent blocked on the slot fence in the last frame.
	fenceWait time.Duration
}

func NewOrchestrator(
	surface *PresentationSurface,
	tracker *FrameSyncTracker,
	commands *CommandStreamManager,
	recreation *RecreationCoordinator,
	sync SyncBackend,
	primary *RenderNode,
	handoff core.HandoffMode,
) (*Orchestrator, error) {
	if handoff == "" {
		handoff = core.HandoffSemaphore
	}
	o := &Orchestrator{
		surface:    surface,
		tracker:    tracker,
		commands:   commands,
		recreation: recreation,
		sync:       sync,
		handoff:    handoff,
		primary:    primary,
		sets:       make(map[*RenderNode]*CommandBufferSet),
		handoffs:   make(map[edge][]*metadata.Semaphore),
		incoming:   make(map[*RenderNode][]*RenderNode),
		outgoing:   make(map[*RenderNode][]*RenderNode),
		deps:       newSemaphoreDependencies(),
		state:      FRAME_STATE_IDLE,
	}

	order, err := orderRenderGraph(primary)
	if err != nil {
		return nil, err
	}
	o.order = order

	if primary.Pass.Queue() != metadata.QUEUE_KIND_GRAPHICS {
		return nil, core.Wrapf(core.ErrInvalidGraph, "primary pass %s must run on the graphics queue", primary.Pass.Name())
	}

	for _, node := range order {
		for _, dep := range node.DependsOn {
			if handoff == core.HandoffQueueOrder && dep.Pass.Queue() != node.Pass.Queue() {
				return nil, core.Wrapf(core.ErrInvalidGraph, "%s runs on the %s queue but %s consumes it on the %s queue, queue order hand-off needs a single queue",
					dep.Pass.Name(), dep.Pass.Queue(), node.Pass.Name(), node.Pass.Queue())
			}
			o.incoming[node] = append(o.incoming[node], dep)
			o.outgoing[dep] = append(o.outgoing[dep], node)
		}
	}

	for _, node := range order {
		set, err := commands.NewCommandBufferSet(core.NewName(node.Pass.Name()), node.Pass.Queue(), metadata.COMMAND_POOL_USAGE_RESET_INDIVIDUALLY)
		if err != nil {
			o.Destroy()
			return nil, err
		}
		o.sets[node] = set
	}

	if handoff == core.HandoffSemaphore {
		for _, node := range order {
			for _, dep := range o.incoming[node] {
				e := edge{producer: dep, consumer: node}
				if _, ok := o.handoffs[e]; ok {
					continue
				}
				sems := make([]*metadata.Semaphore, 0, tracker.Concurrency())
				for slot := uint32(0); slot < tracker.Concurrency(); slot++ {
					sem, err := sync.CreateSemaphore(fmt.Sprintf("handoff_%s_to_%s_%d", dep.Pass.Name(), node.Pass.Name(), slot))
					if err != nil {
						o.handoffs[e] = sems
						o.Destroy()
						return nil, err
					}
					sems = append(sems, sem)
				}
				o.handoffs[e] = sems
			}
		}
	}

	names := make([]string, 0, len(order))
	for _, node := range order {
		names = append(names, node.Pass.Name())
	}
	core.LogInfo("render graph: %v (hand-off: %s)", names, handoff)
	return o, nil
}

// orderRenderGraph returns every node reachable from the primary with
// dependencies before dependents. Cycles are rejected.
func orderRenderGraph(primary *RenderNode) ([]*RenderNode, error) {
	if primary == nil || primary.Pass == nil {
		return nil, core.Wrapf(core.ErrInvalidGraph, "missing primary pass")
	}
	const (
		unvisited = iota
		visiting
		done
	)
	marks := make(map[*RenderNode]int)
	order := make([]*RenderNode, 0)

	var visit func(n *RenderNode) error
	visit = func(n *RenderNode) error {
		switch marks[n] {
		case done:
			return nil
		case visiting:
			return core.Wrapf(core.ErrInvalidGraph, "cycle through %s", n.Pass.Name())
		}
		if n.Pass == nil {
			return core.Wrapf(core.ErrInvalidGraph, "node without a pass")
		}
		marks[n] = visiting
		for _, dep := range n.DependsOn {
			if err := visit(dep); err != nil {
				return err
			}
		}
		marks[n] = done
		order = append(order, n)
		return nil
	}
	if err := visit(primary); err != nil {
		return nil, err
	}
	return order, nil
}

func (o *Orchestrator) CurrentFrame() uint64 {
	return o.frame
}

func (o *Orchestrator) State() FrameState {
	return o.state
}

// FenceWait is how long the last frame blocked waiting for the GPU to
// release its slot.
func (o *Orchestrator) FenceWait() time.Duration {
	return o.fenceWait
}

// RequestRecreation rebuilds the swapchain before the next acquire.
func (o *Orchestrator) RequestRecreation() {
	o.recreationPending = true
}

func (o *Orchestrator) RecreationPending() bool {
	return o.recreationPending
}

// SetExtraSemaphoreDependencyForFrame makes the primary submission of the
// given frame wait on sem. The caller keeps ownership of the semaphore.
func (o *Orchestrator) SetExtraSemaphoreDependencyForFrame(sem *metadata.Semaphore, frame uint64) {
	o.deps.set(sem, frame)
}

func (o *Orchestrator) RemoveAllExtraSemaphoreDependenciesForFrame(frame uint64) []*metadata.Semaphore {
	return o.deps.removeAll(frame)
}

func (o *Orchestrator) FillInExtraSemaphoreDependenciesForFrame(dst []*metadata.Semaphore, frame uint64) []*metadata.Semaphore {
	return o.deps.fillIn(dst, frame)
}

// PendingDependencyFrames lists the frames that still have extra
// semaphore dependencies registered.
func (o *Orchestrator) PendingDependencyFrames() []uint64 {
	return o.deps.frames()
}

// RenderFrame renders and presents one frame. Out of date and suboptimal
// swapchains are recreated, everything else is returned as a fatal error.
func (o *Orchestrator) RenderFrame(deltaTime float64) error {
	if o.recreationPending {
		o.recreationPending = false
		if err := o.recreation.Recreate(); err != nil {
			return err
		}
	}

	// Wait for the GPU to release the slot.
	o.state = FRAME_STATE_WAIT_FOR_SLOT
	slot := o.tracker.SlotForFrame(o.frame)
	var waitErr error
	o.fenceWait = core.Measure(func() {
		waitErr = o.tracker.WaitAndResetFence(slot)
	})
	if waitErr != nil {
		return fatal(waitErr, "vkWaitForFences")
	}
	if err := o.commands.Recycle(slot); err != nil {
		return fatal(err, "vkResetCommandBuffer")
	}
	concurrency := uint64(o.tracker.Concurrency())
	if o.frame >= concurrency {
		o.deps.pruneThrough(o.frame - concurrency)
	}

	// Acquire.
	o.state = FRAME_STATE_ACQUIRE_IMAGE
	fs := o.tracker.Slot(slot)
	imageIndex, status, err := o.surface.AcquireNextImage(fs.ImageAvailable)
	if err != nil {
		return fatal(err, "vkAcquireNextImageKHR")
	}
	switch status {
	case metadata.StatusOutOfDate:
		core.LogDebug("swapchain out of date on acquire, frame %d aborted", o.frame)
		// The fence was reset above; signal it again so the next wait on
		// this slot does not block forever.
		if err := o.commands.Submit(&metadata.SubmitInfo{
			Queue: metadata.QUEUE_KIND_GRAPHICS,
			Fence: fs.Fence,
		}); err != nil {
			return fatal(err, "vkQueueSubmit")
		}
		o.state = FRAME_STATE_IDLE
		return o.recreation.Recreate()
	case metadata.StatusSuboptimal:
		core.LogDebug("swapchain suboptimal on acquire, recreating after this frame")
		o.recreationPending = true
	}

	ctx := &FrameContext{
		Frame:      o.frame,
		Slot:       slot,
		ImageIndex: imageIndex,
		Swapchain:  o.surface.State(),
		DeltaTime:  deltaTime,
	}

	for _, node := range o.order {
		if node == o.primary {
			o.state = FRAME_STATE_RECORD_PRIMARY
		} else {
			o.state = FRAME_STATE_RECORD_AUXILIARY
		}
		buffer := o.sets[node].Buffer(slot)
		if err := o.record(node, ctx, buffer); err != nil {
			return err
		}

		o.state = FRAME_STATE_SUBMIT
		info := o.submitInfo(node, slot, buffer)
		if err := o.commands.Submit(info); err != nil {
			return fatal(err, "vkQueueSubmit")
		}
	}

	// Present.
	o.state = FRAME_STATE_PRESENT
	status, err = o.surface.Present(imageIndex, []*metadata.Semaphore{fs.RenderFinished})
	if err != nil {
		return fatal(err, "vkQueuePresentKHR")
	}
	if status != metadata.StatusSuccess {
		core.LogDebug("swapchain %s on present, recreating before the next acquire", status)
		o.recreationPending = true
	}

	o.frame++
	o.state = FRAME_STATE_IDLE
	return nil
}

func (o *Orchestrator) record(node *RenderNode, ctx *FrameContext, buffer *metadata.CommandBuffer) error {
	if err := o.commands.Begin(buffer, false); err != nil {
		return fatal(err, "vkBeginCommandBuffer")
	}
	if err := node.Pass.Record(ctx, buffer); err != nil {
		return fatal(err, fmt.Sprintf("recording %s", node.Pass.Name()))
	}
	if err := o.commands.End(buffer); err != nil {
		return fatal(err, "vkEndCommandBuffer")
	}
	return nil
}

func (o *Orchestrator) submitInfo(node *RenderNode, slot uint32, buffer *metadata.CommandBuffer) *metadata.SubmitInfo {
	info := &metadata.SubmitInfo{
		Queue:          node.Pass.Queue(),
		CommandBuffers: []*metadata.CommandBuffer{buffer},
	}

	if o.handoff == core.HandoffSemaphore {
		stage := metadata.PIPELINE_STAGE_ALL_COMMANDS
		if stager, ok := node.Pass.(HandoffWaitStager); ok {
			stage = stager.HandoffWaitStage()
		}
		for _, dep := range o.incoming[node] {
			info.Waits = append(info.Waits, metadata.SemaphoreWait{
				Semaphore: o.handoffs[edge{producer: dep, consumer: node}][slot],
				Stage:     stage,
			})
		}
		for _, consumer := range o.outgoing[node] {
			info.Signals = append(info.Signals, o.handoffs[edge{producer: node, consumer: consumer}][slot])
		}
	}

	if node == o.primary {
		fs := o.tracker.Slot(slot)
		info.Waits = append(info.Waits, metadata.SemaphoreWait{
			Semaphore: fs.ImageAvailable,
			Stage:     metadata.PIPELINE_STAGE_COLOR_ATTACHMENT_OUTPUT,
		})
		for _, sem := range o.deps.fillIn(nil, o.frame) {
			info.Waits = append(info.Waits, metadata.SemaphoreWait{
				Semaphore: sem,
				Stage:     metadata.PIPELINE_STAGE_ALL_COMMANDS,
			})
		}
		info.Signals = append(info.Signals, fs.RenderFinished)
		info.Signals = append(info.Signals, fs.ExtraRenderFinishedSemaphores...)
		info.Fence = fs.Fence
	}
	return info
}

// Destroy releases the command buffer sets of every node and the hand-off
// semaphores. The device must be idle.
func (o *Orchestrator) Destroy() {
	for node, set := range o.sets {
		o.commands.ReleaseSet(set)
		delete(o.sets, node)
	}
	for e, sems := range o.handoffs {
		for _, sem := range sems {
			o.sync.DestroySemaphore(sem)
		}
		delete(o.handoffs, e)
	}
}

func fatal(err error, operation string) error {
	if core.IsFatal(err) {
		return err
	}
	return core.MarkFatal(err, operation)
}
