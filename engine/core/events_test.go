package core

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventQueueDrainsInOrder(t *testing.T) {
	eq := NewEventQueue(8)
	eq.Push(Event{Code: EVENT_CODE_KEY_PRESSED, KeyCode: KEY_A})
	eq.Push(Event{Code: EVENT_CODE_RESIZED, Width: 10, Height: 20})
	eq.Push(Event{Code: EVENT_CODE_APPLICATION_QUIT})

	var codes []EventCode
	n := eq.Drain(func(e Event) { codes = append(codes, e.Code) })

	assert.Equal(t, 3, n)
	assert.Equal(t, []EventCode{EVENT_CODE_KEY_PRESSED, EVENT_CODE_RESIZED, EVENT_CODE_APPLICATION_QUIT}, codes)
	assert.Equal(t, 0, eq.Len())
}

func TestEventQueueDropsWhenFull(t *testing.T) {
	eq := NewEventQueue(2)
	assert.True(t, eq.Push(Event{Code: EVENT_CODE_MOUSE_MOVED}))
	assert.True(t, eq.Push(Event{Code: EVENT_CODE_MOUSE_MOVED}))
	assert.False(t, eq.Push(Event{Code: EVENT_CODE_MOUSE_MOVED}))
	assert.Equal(t, uint64(1), eq.Dropped())
}

func TestEventQueuePushDuringDrainIsDeferred(t *testing.T) {
	eq := NewEventQueue(4)
	eq.Push(Event{Code: EVENT_CODE_SHADER_CHANGED})

	n := eq.Drain(func(e Event) {
		eq.Push(Event{Code: EVENT_CODE_APPLICATION_QUIT})
	})
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, eq.Len())
}

func TestEventQueueConcurrentProducers(t *testing.T) {
	eq := NewEventQueue(1000)
	var wg sync.WaitGroup
	for p := 0; p < 10; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				eq.Push(Event{Code: EVENT_CODE_MOUSE_MOVED})
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 500, eq.Drain(func(Event) {}))
}
