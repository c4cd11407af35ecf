package renderer

import (
	"sort"

	"github.com/spaghettifunk/foveal/engine/renderer/metadata"
)

// semaphoreDependencies are extra semaphores the primary submission of a
// given frame waits on. The registering collaborator keeps ownership of the
// semaphores.
type semaphoreDependencies struct {
	byFrame map[uint64][]*metadata.Semaphore
}

func newSemaphoreDependencies() *semaphoreDependencies {
	return &semaphoreDependencies{
		byFrame: make(map[uint64][]*metadata.Semaphore),
	}
}

func (d *semaphoreDependencies) set(sem *metadata.Semaphore, frame uint64) {
	for _, s := range d.byFrame[frame] {
		if s == sem {
			return
		}
	}
	d.byFrame[frame] = append(d.byFrame[frame], sem)
}

func (d *semaphoreDependencies) removeAll(frame uint64) []*metadata.Semaphore {
	sems := d.byFrame[frame]
	delete(d.byFrame, frame)
	return sems
}

func (d *semaphoreDependencies) fillIn(dst []*metadata.Semaphore, frame uint64) []*metadata.Semaphore {
	return append(dst, d.byFrame[frame]...)
}

// pruneThrough forgets every frame up to and including the given one.
func (d *semaphoreDependencies) pruneThrough(frame uint64) int {
	pruned := 0
	for f := range d.byFrame {
		if f <= frame {
			delete(d.byFrame, f)
			pruned++
		}
	}
	return pruned
}

func (d *semaphoreDependencies) frames() []uint64 {
	out := make([]uint64, 0, len(d.byFrame))
	for f := range d.byFrame {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
