package metadata

type RendererBackendConfig struct {
	/** @brief The name of the application */
	ApplicationName string
	/** @brief Enables the validation layers and the debug report callback. */
	EnableValidation bool
}

/** @brief A GPU to host synchronization primitive. */
type Fence struct {
	Name       string
	IsSignaled bool
	/** @brief Backend fence handle. */
	InternalData interface{}
}

/** @brief A GPU to GPU synchronization primitive. */
type Semaphore struct {
	Name string
	/** @brief Backend semaphore handle. */
	InternalData interface{}
}

type QueueKind int

const (
	QUEUE_KIND_GRAPHICS QueueKind = iota
	QUEUE_KIND_COMPUTE
	QUEUE_KIND_TRANSFER
)

func (q QueueKind) String() string {
	switch q {
	case QUEUE_KIND_GRAPHICS:
		return "graphics"
	case QUEUE_KIND_COMPUTE:
		return "compute"
	case QUEUE_KIND_TRANSFER:
		return "transfer"
	}
	return "unknown"
}

/**
 * @brief How buffers allocated from a pool are going to be used.
 * Maps to the pool creation flags.
 */
type CommandPoolUsage int

const (
	/** @brief Buffers are reset and re-recorded one by one every frame. */
	COMMAND_POOL_USAGE_RESET_INDIVIDUALLY CommandPoolUsage = iota
	/** @brief Buffers are short lived, recorded once and freed. */
	COMMAND_POOL_USAGE_TRANSIENT
)

type CommandPool struct {
	Name  string
	Queue QueueKind
	Usage CommandPoolUsage
	/** @brief Backend pool handle. */
	InternalData interface{}
}

type CommandBufferState int

const (
	COMMAND_BUFFER_STATE_READY CommandBufferState = iota
	COMMAND_BUFFER_STATE_RECORDING
	COMMAND_BUFFER_STATE_IN_RENDER_PASS
	COMMAND_BUFFER_STATE_RECORDING_ENDED
	COMMAND_BUFFER_STATE_SUBMITTED
	COMMAND_BUFFER_STATE_NOT_ALLOCATED
)

type CommandBuffer struct {
	Name  string
	State CommandBufferState
	Pool  *CommandPool
	/** @brief Backend command buffer handle. */
	InternalData interface{}
}

// PipelineStage values are the Vulkan pipeline stage bits.
type PipelineStage uint32

const (
	PIPELINE_STAGE_TOP_OF_PIPE             PipelineStage = 0x00000001
	PIPELINE_STAGE_VERTEX_SHADER           PipelineStage = 0x00000008
	PIPELINE_STAGE_FRAGMENT_SHADER         PipelineStage = 0x00000080
	PIPELINE_STAGE_COLOR_ATTACHMENT_OUTPUT PipelineStage = 0x00000400
	PIPELINE_STAGE_COMPUTE_SHADER          PipelineStage = 0x00000800
	PIPELINE_STAGE_TRANSFER                PipelineStage = 0x00001000
	PIPELINE_STAGE_BOTTOM_OF_PIPE          PipelineStage = 0x00002000
	PIPELINE_STAGE_ALL_COMMANDS            PipelineStage = 0x00010000
)

type SemaphoreWait struct {
	Semaphore *Semaphore
	Stage     PipelineStage
}

/** @brief One queue submission. Fence may be nil. */
type SubmitInfo struct {
	Queue          QueueKind
	CommandBuffers []*CommandBuffer
	Waits          []SemaphoreWait
	Signals        []*Semaphore
	Fence          *Fence
}
