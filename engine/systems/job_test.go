package systems

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/foveal/engine/renderer/metadata"
)

func TestNewJobSystemValidation(t *testing.T) {
	_, err := NewJobSystem(0, 1)
	assert.ErrorIs(t, err, ErrNoWorkers)

	_, err = NewJobSystem(1, -1)
	assert.ErrorIs(t, err, ErrNegativeChannelSize)
}

func TestJobsRunAndReport(t *testing.T) {
	js, err := NewJobSystem(4, 8)
	require.NoError(t, err)

	var completed, failed int32
	var mu sync.Mutex
	results := map[int]bool{}

	for i := 0; i < 20; i++ {
		i := i
		require.NoError(t, js.Submit(metadata.JobTask{
			Name: "job",
			Run: func() (interface{}, error) {
				if i%5 == 0 {
					return nil, errors.New("boom")
				}
				return i, nil
			},
			OnComplete: func(result interface{}) {
				atomic.AddInt32(&completed, 1)
				mu.Lock()
				results[result.(int)] = true
				mu.Unlock()
			},
			OnFailure: func(err error) {
				atomic.AddInt32(&failed, 1)
			},
		}))
	}
	require.NoError(t, js.Shutdown())

	assert.Equal(t, int32(16), completed)
	assert.Equal(t, int32(4), failed)
	assert.True(t, results[7])
	assert.False(t, results[10])
}

func TestSubmitAfterShutdown(t *testing.T) {
	js, err := NewJobSystem(1, 0)
	require.NoError(t, err)
	require.NoError(t, js.Shutdown())
	require.NoError(t, js.Shutdown())

	err = js.Submit(metadata.JobTask{Name: "late", Run: func() (interface{}, error) { return nil, nil }})
	assert.ErrorIs(t, err, ErrJobSystemClosed)
}

func TestSubmitWithoutRun(t *testing.T) {
	js, err := NewJobSystem(1, 1)
	require.NoError(t, err)
	defer js.Shutdown()

	assert.Error(t, js.Submit(metadata.JobTask{Name: "empty"}))
}
