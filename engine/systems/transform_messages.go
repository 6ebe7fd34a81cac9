package systems

/** @brief A transform waiting for the next flush. Matrix is column-major. */
type PendingRequest struct {
	MeshID uint32
	Matrix [16]float32
}

/**
 * @brief The packed output of one lane for one flush. Positions of MeshIDs[i]
 * are Positions[Offsets[i]:Offsets[i+1]]; Offsets has len(MeshIDs)+1 entries and
 * the last one is the total float count.
 */
type TransformResults struct {
	MeshIDs   []uint32
	Offsets   []uint32
	Positions []float32
}

/** @brief Receives the transformed positions of one mesh. The slice is a view into a shared buffer and must be copied. */
type ResultCallback func(positions []float32)

// laneMessage is anything a lane goroutine accepts on its inbox.
type laneMessage interface {
	isLaneMessage()
}

// registerMessage moves ownership of Positions into the lane.
type registerMessage struct {
	MeshID    uint32
	Positions []float32
}

type transformBatchMessage struct {
	Requests []PendingRequest
	Reply    chan<- laneReply
}

// laneReply carries the results of one batch back to the flushing goroutine.
type laneReply struct {
	Lane    int
	Results TransformResults
}

type unregisterMessage struct {
	MeshID uint32
}

type clearMessage struct{}

func (registerMessage) isLaneMessage()       {}
func (transformBatchMessage) isLaneMessage() {}
func (unregisterMessage) isLaneMessage()     {}
func (clearMessage) isLaneMessage()          {}
