package core

import (
	"sync"

	"github.com/spaghettifunk/foveal/engine/containers"
)

// System internal event codes. Application should use codes beyond 255.
type EventCode uint16

const (
	// Shuts the application down on the next frame.
	EVENT_CODE_APPLICATION_QUIT EventCode = 0x01

	// Keyboard key pressed. KeyCode holds the key.
	EVENT_CODE_KEY_PRESSED EventCode = 0x02

	// Keyboard key released. KeyCode holds the key.
	EVENT_CODE_KEY_RELEASED EventCode = 0x03

	// Mouse button pressed. Button holds the button.
	EVENT_CODE_BUTTON_PRESSED EventCode = 0x04

	// Mouse button released. Button holds the button.
	EVENT_CODE_BUTTON_RELEASED EventCode = 0x05

	// Mouse moved. X and Y hold the cursor position in pixels.
	EVENT_CODE_MOUSE_MOVED EventCode = 0x06

	// Mouse wheel. Y holds the scroll delta.
	EVENT_CODE_MOUSE_WHEEL EventCode = 0x07

	// Framebuffer resized/resolution changed from the OS. Width and Height hold the new size.
	EVENT_CODE_RESIZED EventCode = 0x08

	// A watched shader binary changed on disk. Path holds the file.
	EVENT_CODE_SHADER_CHANGED EventCode = 0x09

	// A background asset job finished. Payload holds the result.
	EVENT_CODE_ASSET_LOADED EventCode = 0x0A

	MAX_EVENT_CODE EventCode = 0xFF
)

// Event is a value copied into the queue by producers and consumed by the
// thread that owns the renderer.
type Event struct {
	Code    EventCode
	KeyCode KeyCode
	Button  Button
	X, Y    float64
	Width   uint32
	Height  uint32
	Path    string
	Payload interface{}
}

const DefaultEventQueueSize = 1024

// EventQueue collects events from any goroutine; Drain must only be called
// from the rendering thread.
type EventQueue struct {
	mu      sync.Mutex
	queue   *containers.RingQueue[Event]
	dropped uint64
}

func NewEventQueue(size int) *EventQueue {
	if size <= 0 {
		size = DefaultEventQueueSize
	}
	return &EventQueue{
		queue: containers.NewRingQueue[Event](size),
	}
}

// Push enqueues an event. When the queue is full the event is dropped and
// false is returned.
func (eq *EventQueue) Push(e Event) bool {
	eq.mu.Lock()
	defer eq.mu.Unlock()

	if err := eq.queue.Enqueue(e); err != nil {
		eq.dropped++
		if eq.dropped == 1 || eq.dropped%100 == 0 {
			LogWarn("event queue full, dropped %d events so far (last code 0x%02x)", eq.dropped, e.Code)
		}
		return false
	}
	return true
}

// Drain hands every queued event to fn in FIFO order. Events pushed while
// draining are delivered on the next call.
func (eq *EventQueue) Drain(fn func(Event)) int {
	eq.mu.Lock()
	pending := make([]Event, 0, eq.queue.Len())
	for !eq.queue.IsEmpty() {
		e, err := eq.queue.Dequeue()
		if err != nil {
			break
		}
		pending = append(pending, e)
	}
	eq.mu.Unlock()

	for _, e := range pending {
		fn(e)
	}
	return len(pending)
}

func (eq *EventQueue) Len() int {
	eq.mu.Lock()
	defer eq.mu.Unlock()
	return eq.queue.Len()
}

func (eq *EventQueue) Dropped() uint64 {
	eq.mu.Lock()
	defer eq.mu.Unlock()
	return eq.dropped
}
