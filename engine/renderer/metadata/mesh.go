package metadata

/** @brief Identifies a vertex attribute stream of a mesh buffer. */
type DataField int

const (
	DataFieldPositions DataField = iota
	DataFieldTexCoords
	DataFieldColors
)

func (f DataField) String() string {
	switch f {
	case DataFieldPositions:
		return "positions"
	case DataFieldTexCoords:
		return "texcoords"
	case DataFieldColors:
		return "colors"
	default:
		return "unknown"
	}
}

/** @brief A range of a vertex stream that must be re-uploaded, in floats. */
type DirtyRange struct {
	Start uint32
	Count uint32
}

/**
 * @brief The CPU side of a GPU mesh buffer. Views are written by the owner and
 * uploaded by the backend for every range marked as changed.
 */
type MeshData struct {
	/** @brief The backend buffer identifier. */
	ID uint32
	VertexCount uint32
	IndexCount  uint32
	/** @brief xyz per vertex. */
	Positions []float32
	/** @brief uv per vertex. */
	TexCoords []float32
	/** @brief rgba per vertex. */
	Colors  []float32
	Indices []uint32

	dirty        map[DataField]DirtyRange
	indicesDirty bool
	released     bool
	onRelease    func(*MeshData)
}

/**
 * @brief Allocates the views for a buffer. Backends call this from CreateMeshData.
 *
 * @param id The backend buffer identifier.
 * @param onRelease Invoked once when the owner releases the buffer. May be nil.
 */
func NewMeshData(id, vertexCount, indexCount uint32, onRelease func(*MeshData)) *MeshData {
	return &MeshData{
		ID:          id,
		VertexCount: vertexCount,
		IndexCount:  indexCount,
		Positions:   make([]float32, vertexCount*3),
		TexCoords:   make([]float32, vertexCount*2),
		Colors:      make([]float32, vertexCount*4),
		Indices:     make([]uint32, indexCount),
		dirty:       make(map[DataField]DirtyRange),
		onRelease:   onRelease,
	}
}

/** @brief Marks count floats of field starting at start as changed. Ranges are merged. */
func (md *MeshData) MarkDataChanged(field DataField, start, count uint32) {
	if md.released {
		return
	}
	r, ok := md.dirty[field]
	if !ok {
		md.dirty[field] = DirtyRange{Start: start, Count: count}
		return
	}
	end := max(r.Start+r.Count, start+count)
	r.Start = min(r.Start, start)
	r.Count = end - r.Start
	md.dirty[field] = r
}

func (md *MeshData) MarkIndexDataChanged() {
	if md.released {
		return
	}
	md.indicesDirty = true
}

/** @brief Sets every vertex colour and marks the colour stream as changed. */
func (md *MeshData) FillColor(r, g, b, a float32) {
	for i := 0; i+3 < len(md.Colors); i += 4 {
		md.Colors[i] = r
		md.Colors[i+1] = g
		md.Colors[i+2] = b
		md.Colors[i+3] = a
	}
	md.MarkDataChanged(DataFieldColors, 0, uint32(len(md.Colors)))
}

/** @brief Returns the pending dirty range of field, if any. */
func (md *MeshData) DirtyRange(field DataField) (DirtyRange, bool) {
	r, ok := md.dirty[field]
	return r, ok
}

func (md *MeshData) IndicesDirty() bool {
	return md.indicesDirty
}

/** @brief Clears every pending change. Backends call this after uploading. */
func (md *MeshData) ClearDirty() {
	clear(md.dirty)
	md.indicesDirty = false
}

func (md *MeshData) IsReleased() bool {
	return md.released
}

/** @brief Releases the buffer. Safe to call more than once. */
func (md *MeshData) Release() {
	if md.released {
		return
	}
	md.released = true
	if md.onRelease != nil {
		md.onRelease(md)
	}
}
