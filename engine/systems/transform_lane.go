package systems

import (
	"github.com/spaghettifunk/scenebake/engine/core"
	"github.com/spaghettifunk/scenebake/engine/math"
)

const laneInboxSize = 64

// transformLane is one isolated execution context. The meshes map holds the
// original positions of every mesh assigned to the lane and is only touched
// by the lane goroutine.
type transformLane struct {
	index  int
	inbox  chan laneMessage
	meshes map[uint32][]float32
}

func newTransformLane(index int) *transformLane {
	return &transformLane{
		index:  index,
		inbox:  make(chan laneMessage, laneInboxSize),
		meshes: make(map[uint32][]float32),
	}
}

func (l *transformLane) run() {
	for msg := range l.inbox {
		switch m := msg.(type) {
		case registerMessage:
			l.meshes[m.MeshID] = m.Positions
		case unregisterMessage:
			delete(l.meshes, m.MeshID)
		case clearMessage:
			clear(l.meshes)
		case transformBatchMessage:
			m.Reply <- laneReply{Lane: l.index, Results: l.transform(m.Requests)}
		default:
			core.LogWarn("transform lane %d received unknown message %T", l.index, msg)
		}
	}
}

// transform packs every known mesh of the batch into one buffer. Unknown ids
// are skipped; an empty batch produces an empty result.
func (l *transformLane) transform(requests []PendingRequest) TransformResults {
	total := 0
	known := 0
	for _, req := range requests {
		if original, ok := l.meshes[req.MeshID]; ok {
			total += len(original)
			known++
		}
	}

	results := TransformResults{
		MeshIDs:   make([]uint32, 0, known),
		Offsets:   make([]uint32, 0, known+1),
		Positions: make([]float32, total),
	}

	offset := uint32(0)
	for _, req := range requests {
		original, ok := l.meshes[req.MeshID]
		if !ok {
			continue
		}
		m := math.Mat4{Data: req.Matrix}
		n := uint32(len(original))
		math.ApplyAffine(results.Positions[offset:offset+n], original, &m)

		results.MeshIDs = append(results.MeshIDs, req.MeshID)
		results.Offsets = append(results.Offsets, offset)
		offset += n
	}
	results.Offsets = append(results.Offsets, offset)
	return results
}
