package renderer

import (
	"fmt"

	"github.com/spaghettifunk/foveal/engine/core"
	"github.com/spaghettifunk/foveal/engine/renderer/metadata"
)

// CommandBufferSet is one command buffer per frame slot for a single pass.
type CommandBufferSet struct {
	Name    string
	Queue   metadata.QueueKind
	Buffers []*metadata.CommandBuffer
}

// Buffer returns the buffer recorded for the given slot.
func (s *CommandBufferSet) Buffer(slot uint32) *metadata.CommandBuffer {
	return s.Buffers[slot]
}

type poolKey struct {
	queue metadata.QueueKind
	usage metadata.CommandPoolUsage
}

// CommandStreamManager hands out command buffers and tracks their state.
// It is not safe for concurrent use: every recording thread needs its own
// manager.
type CommandStreamManager struct {
	backend     CommandBackend
	concurrency uint32
	debugChecks bool

	pools     map[poolKey]*metadata.CommandPool
	poolOrder []*metadata.CommandPool
	allocated map[*metadata.CommandPool][]*metadata.CommandBuffer
	sets      []*CommandBufferSet
}

func NewCommandStreamManager(backend CommandBackend, concurrency uint32, debugChecks bool) *CommandStreamManager {
	return &CommandStreamManager{
		backend:     backend,
		concurrency: concurrency,
		debugChecks: debugChecks,
		pools:       make(map[poolKey]*metadata.CommandPool),
		allocated:   make(map[*metadata.CommandPool][]*metadata.CommandBuffer),
	}
}

func (m *CommandStreamManager) pool(queue metadata.QueueKind, usage metadata.CommandPoolUsage) (*metadata.CommandPool, error) {
	key := poolKey{queue: queue, usage: usage}
	if p, ok := m.pools[key]; ok {
		return p, nil
	}
	name := fmt.Sprintf("%s_%s_pool", queue, poolUsageName(usage))
	p, err := m.backend.CreateCommandPool(name, queue, usage)
	if err != nil {
		return nil, err
	}
	m.pools[key] = p
	m.poolOrder = append(m.poolOrder, p)
	return p, nil
}

func poolUsageName(usage metadata.CommandPoolUsage) string {
	if usage == metadata.COMMAND_POOL_USAGE_TRANSIENT {
		return "transient"
	}
	return "resettable"
}

// GetCommandBuffers allocates graphics command buffers from the pool
// matching the usage hint.
func (m *CommandStreamManager) GetCommandBuffers(count uint32, usage metadata.CommandPoolUsage) ([]*metadata.CommandBuffer, error) {
	return m.GetCommandBuffersForQueue(metadata.QUEUE_KIND_GRAPHICS, count, usage)
}

func (m *CommandStreamManager) GetCommandBuffersForQueue(queue metadata.QueueKind, count uint32, usage metadata.CommandPoolUsage) ([]*metadata.CommandBuffer, error) {
	if count == 0 {
		return nil, nil
	}
	p, err := m.pool(queue, usage)
	if err != nil {
		return nil, err
	}
	buffers, err := m.backend.AllocateCommandBuffers(p, count)
	if err != nil {
		return nil, err
	}
	for _, b := range buffers {
		b.Pool = p
		b.State = metadata.COMMAND_BUFFER_STATE_READY
	}
	m.allocated[p] = append(m.allocated[p], buffers...)
	return buffers, nil
}

// NewCommandBufferSet allocates one buffer per frame slot for a pass.
func (m *CommandStreamManager) NewCommandBufferSet(name string, queue metadata.QueueKind, usage metadata.CommandPoolUsage) (*CommandBufferSet, error) {
	buffers, err := m.GetCommandBuffersForQueue(queue, m.concurrency, usage)
	if err != nil {
		return nil, err
	}
	for i, b := range buffers {
		b.Name = fmt.Sprintf("%s_%d", name, i)
	}
	set := &CommandBufferSet{
		Name:    name,
		Queue:   queue,
		Buffers: buffers,
	}
	m.sets = append(m.sets, set)
	return set, nil
}

// ReleaseSet frees the buffers of a set that is no longer recorded. The
// device must be idle.
func (m *CommandStreamManager) ReleaseSet(set *CommandBufferSet) {
	for i, s := range m.sets {
		if s == set {
			m.sets = append(m.sets[:i], m.sets[i+1:]...)
			break
		}
	}
	for _, b := range set.Buffers {
		m.free(b)
	}
	set.Buffers = nil
}

// Recycle resets every buffer that was recorded for the slot. Only call it
// once the slot fence has been waited on.
func (m *CommandStreamManager) Recycle(slot uint32) error {
	for _, set := range m.sets {
		if int(slot) >= len(set.Buffers) {
			continue
		}
		b := set.Buffers[slot]
		if b.State == metadata.COMMAND_BUFFER_STATE_READY {
			continue
		}
		if b.Pool != nil && b.Pool.Usage == metadata.COMMAND_POOL_USAGE_RESET_INDIVIDUALLY {
			if err := m.backend.ResetCommandBuffer(b); err != nil {
				return err
			}
		}
		b.State = metadata.COMMAND_BUFFER_STATE_READY
	}
	return nil
}

func (m *CommandStreamManager) Begin(buffer *metadata.CommandBuffer, singleUse bool) error {
	if m.debugChecks && buffer.State == metadata.COMMAND_BUFFER_STATE_SUBMITTED {
		return core.Wrapf(core.ErrCommandBufferInFlight, "beginning %s", buffer.Name)
	}
	if err := m.backend.BeginCommandBuffer(buffer, singleUse); err != nil {
		return err
	}
	buffer.State = metadata.COMMAND_BUFFER_STATE_RECORDING
	return nil
}

func (m *CommandStreamManager) End(buffer *metadata.CommandBuffer) error {
	if err := m.backend.EndCommandBuffer(buffer); err != nil {
		return err
	}
	buffer.State = metadata.COMMAND_BUFFER_STATE_RECORDING_ENDED
	return nil
}

// Submit hands the recorded buffers to the backend and marks them in flight.
func (m *CommandStreamManager) Submit(info *metadata.SubmitInfo) error {
	if err := m.backend.Submit(info); err != nil {
		return err
	}
	for _, b := range info.CommandBuffers {
		b.State = metadata.COMMAND_BUFFER_STATE_SUBMITTED
	}
	return nil
}

// SubmitOneShot records a single use buffer from the transient pool of the
// queue, submits it and waits for the queue to go idle.
func (m *CommandStreamManager) SubmitOneShot(queue metadata.QueueKind, record func(buffer *metadata.CommandBuffer) error) error {
	buffers, err := m.GetCommandBuffersForQueue(queue, 1, metadata.COMMAND_POOL_USAGE_TRANSIENT)
	if err != nil {
		return err
	}
	buffer := buffers[0]
	buffer.Name = "one_shot"
	defer m.free(buffer)

	if err := m.Begin(buffer, true); err != nil {
		return err
	}
	if err := record(buffer); err != nil {
		return err
	}
	if err := m.End(buffer); err != nil {
		return err
	}
	if err := m.Submit(&metadata.SubmitInfo{
		Queue:          queue,
		CommandBuffers: []*metadata.CommandBuffer{buffer},
	}); err != nil {
		return err
	}
	return m.backend.QueueWaitIdle(queue)
}

func (m *CommandStreamManager) free(buffer *metadata.CommandBuffer) {
	p := buffer.Pool
	m.backend.FreeCommandBuffers(p, []*metadata.CommandBuffer{buffer})
	buffer.State = metadata.COMMAND_BUFFER_STATE_NOT_ALLOCATED
	list := m.allocated[p]
	for i, b := range list {
		if b == buffer {
			m.allocated[p] = append(list[:i], list[i+1:]...)
			break
		}
	}
}

// Destroy frees every buffer and pool. The device must be idle.
func (m *CommandStreamManager) Destroy() {
	for i := len(m.poolOrder) - 1; i >= 0; i-- {
		p := m.poolOrder[i]
		if buffers := m.allocated[p]; len(buffers) > 0 {
			m.backend.FreeCommandBuffers(p, buffers)
			for _, b := range buffers {
				b.State = metadata.COMMAND_BUFFER_STATE_NOT_ALLOCATED
			}
		}
		m.backend.DestroyCommandPool(p)
	}
	m.pools = make(map[poolKey]*metadata.CommandPool)
	m.allocated = make(map[*metadata.CommandPool][]*metadata.CommandBuffer)
	m.poolOrder = nil
	m.sets = nil
}
