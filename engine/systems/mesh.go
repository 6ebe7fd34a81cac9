package systems

import (
	"fmt"
	"sync"

	"github.com/spaghettifunk/scenebake/engine/core"
	"github.com/spaghettifunk/scenebake/engine/math"
	"github.com/spaghettifunk/scenebake/engine/renderer"
	"github.com/spaghettifunk/scenebake/engine/renderer/metadata"
)

/**
 * @brief One drawable primitive. Keeps the baked baseline positions and writes
 * transformed copies of them into its GPU buffer, either directly or through a
 * TransformPool.
 */
type MeshResource struct {
	ID          uint32
	VertexCount uint32
	Data        *metadata.MeshData
	Texture     *metadata.Texture

	originalPositions []float32

	mu          sync.Mutex
	lastApplied *math.Mat4
	pool        *TransformPool
	released    bool
	applyCount  int
}

/**
 * @brief Creates a mesh and uploads its buffers.
 *
 * @param backend The renderer that owns the GPU buffer.
 * @param positions xyz per vertex, already baked into model space. Copied.
 * @param texCoords uv per vertex, or nil for zeroes.
 * @param indices Triangle indices, or nil to draw vertices in order.
 * @param texture Base colour texture, borrowed. May be nil.
 */
func NewMeshResource(backend renderer.Backend, positions, texCoords []float32, indices []uint32, texture *metadata.Texture) (*MeshResource, error) {
	if len(positions) == 0 || len(positions)%3 != 0 {
		return nil, fmt.Errorf("mesh needs xyz positions, got %d floats: %w", len(positions), core.ErrDocumentInvalid)
	}
	vertexCount := uint32(len(positions) / 3)

	if indices == nil {
		indices = make([]uint32, vertexCount)
		for i := range indices {
			indices[i] = uint32(i)
		}
	}
	for _, idx := range indices {
		if idx >= vertexCount {
			return nil, fmt.Errorf("index %d out of range for %d vertices: %w", idx, vertexCount, core.ErrDocumentInvalid)
		}
	}

	mr := &MeshResource{
		ID:                core.IdentifierAcquireNewID(),
		VertexCount:       vertexCount,
		Texture:           texture,
		originalPositions: append([]float32(nil), positions...),
	}

	md := backend.CreateMeshData(vertexCount, uint32(len(indices)))
	copy(md.Positions, mr.originalPositions)
	md.MarkDataChanged(metadata.DataFieldPositions, 0, uint32(len(md.Positions)))

	if texCoords != nil && len(texCoords) != len(md.TexCoords) {
		core.LogWarn("mesh %d has %d texture coordinates for %d vertices, ignoring them", mr.ID, len(texCoords)/2, vertexCount)
		texCoords = nil
	}
	if texCoords != nil {
		copy(md.TexCoords, texCoords)
	}
	md.MarkDataChanged(metadata.DataFieldTexCoords, 0, uint32(len(md.TexCoords)))

	copy(md.Indices, indices)
	md.MarkIndexDataChanged()
	md.FillColor(1, 1, 1, 1)

	mr.Data = md
	return mr, nil
}

/**
 * @brief Hands a copy of the baseline positions to pool. Results delivered after
 * the mesh was released are dropped. Registering twice is a no-op.
 */
func (mr *MeshResource) RegisterWithPool(pool *TransformPool) error {
	mr.mu.Lock()
	defer mr.mu.Unlock()

	if mr.released {
		return fmt.Errorf("mesh %d already released", mr.ID)
	}
	if mr.pool != nil {
		return nil
	}

	positions := append([]float32(nil), mr.originalPositions...)
	if err := pool.Register(mr.ID, positions, mr.onTransformed); err != nil {
		return err
	}
	mr.pool = pool
	return nil
}

func (mr *MeshResource) onTransformed(positions []float32) {
	mr.mu.Lock()
	defer mr.mu.Unlock()

	if mr.released {
		return
	}
	n := copy(mr.Data.Positions, positions)
	mr.Data.MarkDataChanged(metadata.DataFieldPositions, 0, uint32(n))
	mr.applyCount++
}

/** @brief Queues m on the pool. Skipped when m equals the last requested matrix. */
func (mr *MeshResource) QueueTransform(m math.Mat4) bool {
	mr.mu.Lock()
	defer mr.mu.Unlock()

	if mr.released || mr.pool == nil || mr.isCurrent(m) {
		return false
	}
	mr.lastApplied = &m
	mr.pool.Queue(mr.ID, m.Data)
	return true
}

/**
 * @brief Transforms the baseline positions by m on the calling goroutine.
 * Skipped when m equals the last applied matrix.
 */
func (mr *MeshResource) UpdateTransformSync(m math.Mat4) {
	mr.mu.Lock()
	defer mr.mu.Unlock()

	if mr.released || mr.isCurrent(m) {
		return
	}
	mr.lastApplied = &m
	math.ApplyAffine(mr.Data.Positions, mr.originalPositions, &m)
	mr.Data.MarkDataChanged(metadata.DataFieldPositions, 0, uint32(len(mr.originalPositions)))
	mr.applyCount++
}

func (mr *MeshResource) isCurrent(m math.Mat4) bool {
	return mr.lastApplied != nil && mr.lastApplied.Equal(m)
}

/** @brief The number of times new positions were written to the buffer. */
func (mr *MeshResource) AppliedCount() int {
	mr.mu.Lock()
	defer mr.mu.Unlock()
	return mr.applyCount
}

func (mr *MeshResource) IsRegistered() bool {
	mr.mu.Lock()
	defer mr.mu.Unlock()
	return mr.pool != nil
}

/** @brief Unregisters the mesh and frees its buffer. The texture is not deleted. Safe to call more than once. */
func (mr *MeshResource) Release() {
	mr.mu.Lock()
	if mr.released {
		mr.mu.Unlock()
		return
	}
	mr.released = true
	pool := mr.pool
	mr.pool = nil
	mr.Texture = nil
	data := mr.Data
	mr.mu.Unlock()

	if pool != nil {
		pool.Unregister(mr.ID)
	}
	if data != nil {
		data.Release()
	}
}
