package renderer

import (
	"fmt"
	stdmath "math"

	"github.com/spaghettifunk/foveal/engine/core"
	"github.com/spaghettifunk/foveal/engine/renderer/metadata"
)

// FrameSlot holds the synchronization objects of one frame in flight.
type FrameSlot struct {
	Index uint32
	// Created signaled so the very first wait returns immediately.
	Fence                        *metadata.Fence
	ImageAvailable               *metadata.Semaphore
	RenderFinished               *metadata.Semaphore
	ExtraRenderFinishedSemaphores []*metadata.Semaphore
}

// FrameSyncTracker owns one FrameSlot per concurrent frame. The number of
// slots is fixed for its whole lifetime.
type FrameSyncTracker struct {
	backend SyncBackend
	slots   []*FrameSlot
	// Fence wait timeout in nanoseconds.
	timeout uint64
}

func NewFrameSyncTracker(backend SyncBackend, concurrency uint32, extraRenderFinished uint32) (*FrameSyncTracker, error) {
	if concurrency == 0 {
		return nil, core.Errorf("frame sync tracker needs at least one concurrent frame")
	}
	t := &FrameSyncTracker{
		backend: backend,
		slots:   make([]*FrameSlot, 0, concurrency),
		timeout: stdmath.MaxUint64,
	}
	for i := uint32(0); i < concurrency; i++ {
		slot, err := t.createSlot(i, extraRenderFinished)
		if err != nil {
			t.Destroy()
			return nil, err
		}
		t.slots = append(t.slots, slot)
	}
	core.LogDebug("frame sync tracker created with %d slots", concurrency)
	return t, nil
}

func (t *FrameSyncTracker) createSlot(index uint32, extras uint32) (*FrameSlot, error) {
	slot := &FrameSlot{Index: index}
	var err error
	if slot.Fence, err = t.backend.CreateFence(fmt.Sprintf("frame_fence_%d", index), true); err != nil {
		return nil, err
	}
	if slot.ImageAvailable, err = t.backend.CreateSemaphore(fmt.Sprintf("image_available_%d", index)); err != nil {
		t.destroySlot(slot)
		return nil, err
	}
	if slot.RenderFinished, err = t.backend.CreateSemaphore(fmt.Sprintf("render_finished_%d", index)); err != nil {
		t.destroySlot(slot)
		return nil, err
	}
	for e := uint32(0); e < extras; e++ {
		sem, err := t.backend.CreateSemaphore(fmt.Sprintf("render_finished_%d_extra_%d", index, e))
		if err != nil {
			t.destroySlot(slot)
			return nil, err
		}
		slot.ExtraRenderFinishedSemaphores = append(slot.ExtraRenderFinishedSemaphores, sem)
	}
	return slot, nil
}

func (t *FrameSyncTracker) destroySlot(slot *FrameSlot) {
	for _, sem := range slot.ExtraRenderFinishedSemaphores {
		t.backend.DestroySemaphore(sem)
	}
	slot.ExtraRenderFinishedSemaphores = nil
	if slot.RenderFinished != nil {
		t.backend.DestroySemaphore(slot.RenderFinished)
		slot.RenderFinished = nil
	}
	if slot.ImageAvailable != nil {
		t.backend.DestroySemaphore(slot.ImageAvailable)
		slot.ImageAvailable = nil
	}
	if slot.Fence != nil {
		t.backend.DestroyFence(slot.Fence)
		slot.Fence = nil
	}
}

func (t *FrameSyncTracker) Concurrency() uint32 {
	return uint32(len(t.slots))
}

// SlotForFrame returns frame mod concurrency.
func (t *FrameSyncTracker) SlotForFrame(frame uint64) uint32 {
	return uint32(frame % uint64(len(t.slots)))
}

// SlotForFrameOffset addresses the slot of a frame relative to the given
// one. Negative offsets address previous frames.
func (t *FrameSyncTracker) SlotForFrameOffset(frame uint64, offset int64) uint32 {
	return wrapIndex(frame, offset, uint32(len(t.slots)))
}

// WaitAndResetFence blocks until the GPU finished the previous submission
// that used the slot, then makes the fence ready for reuse.
func (t *FrameSyncTracker) WaitAndResetFence(slot uint32) error {
	s := t.Slot(slot)
	if err := t.backend.WaitForFence(s.Fence, t.timeout); err != nil {
		return err
	}
	return t.backend.ResetFence(s.Fence)
}

func (t *FrameSyncTracker) Slot(slot uint32) *FrameSlot {
	return t.slots[slot]
}

func (t *FrameSyncTracker) Fence(slot uint32) *metadata.Fence {
	return t.slots[slot].Fence
}

func (t *FrameSyncTracker) ImageAvailableSemaphore(slot uint32) *metadata.Semaphore {
	return t.slots[slot].ImageAvailable
}

func (t *FrameSyncTracker) RenderFinishedSemaphore(slot uint32) *metadata.Semaphore {
	return t.slots[slot].RenderFinished
}

// ExtraRenderFinishedSemaphores are signaled together with the render
// finished semaphore, for collaborators that consume the rendered image.
func (t *FrameSyncTracker) ExtraRenderFinishedSemaphores(slot uint32) []*metadata.Semaphore {
	return t.slots[slot].ExtraRenderFinishedSemaphores
}

// Destroy releases every slot. The device must be idle.
func (t *FrameSyncTracker) Destroy() {
	for _, slot := range t.slots {
		t.destroySlot(slot)
	}
	t.slots = nil
}
