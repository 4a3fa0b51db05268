package systems

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/spaghettifunk/anima-editor/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJobSystem(t *testing.T) {
	_, err := NewJobSystem(0, 1)
	assert.ErrorIs(t, err, ErrNoWorkers)
	_, err = NewJobSystem(1, -1)
	assert.ErrorIs(t, err, ErrNegativeChannelSize)

	js, err := NewJobSystem(4, 0)
	require.NoError(t, err)
	assert.Equal(t, 4, js.Workers())
	require.NoError(t, js.Shutdown())
}

func TestJobSystemRunsCallbacks(t *testing.T) {
	js, err := NewJobSystem(2, 8)
	require.NoError(t, err)
	defer js.Shutdown()

	var wg sync.WaitGroup
	var completed, failed, finished atomic.Int32
	var sum atomic.Int64
	boom := errors.New("boom")

	for i := 1; i <= 10; i++ {
		wg.Add(1)
		require.NoError(t, js.Submit(metadata.JobTask{
			InputParams: i,
			OnStart: func(params interface{}, results chan<- interface{}) error {
				n := params.(int)
				if n%5 == 0 {
					return boom
				}
				results <- n
				return nil
			},
			OnComplete: func(results <-chan interface{}) {
				for r := range results {
					sum.Add(int64(r.(int)))
				}
				completed.Add(1)
			},
			OnFailure: func(err error) {
				assert.ErrorIs(t, err, boom)
				failed.Add(1)
			},
			OnCompletionCallback: func() {
				finished.Add(1)
				wg.Done()
			},
		}))
	}
	wg.Wait()

	assert.Equal(t, int32(8), completed.Load())
	assert.Equal(t, int32(2), failed.Load())
	assert.Equal(t, int32(10), finished.Load())
	assert.Equal(t, int64(55-5-10), sum.Load())
}

func TestJobSystemShutdownDrainsQueue(t *testing.T) {
	js, err := NewJobSystem(1, 16)
	require.NoError(t, err)

	var ran atomic.Int32
	for i := 0; i < 16; i++ {
		require.NoError(t, js.Submit(metadata.JobTask{
			OnStart: func(interface{}, chan<- interface{}) error {
				ran.Add(1)
				return nil
			},
		}))
	}
	require.NoError(t, js.Shutdown())
	assert.Equal(t, int32(16), ran.Load())

	require.NoError(t, js.Shutdown())
	err = js.Submit(metadata.JobTask{OnStart: func(interface{}, chan<- interface{}) error { return nil }})
	assert.ErrorIs(t, err, ErrJobSystemClosed)
	assert.Error(t, js.Submit(metadata.JobTask{}))
}
