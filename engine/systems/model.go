package systems

import (
	"sync"

	"github.com/google/uuid"
	"github.com/spaghettifunk/scenebake/engine/core"
	"github.com/spaghettifunk/scenebake/engine/math"
	"github.com/spaghettifunk/scenebake/engine/renderer"
	"github.com/spaghettifunk/scenebake/engine/renderer/metadata"
)

type ModelStats struct {
	MeshCount     int
	TextureCount  int
	TotalVertices int
	TotalIndices  int
}

/**
 * @brief One loaded instance of a scene document: a flat list of meshes baked
 * from the document node hierarchy. The mesh list never changes once loaded.
 */
type Model struct {
	ID uuid.UUID

	mu          sync.Mutex
	locator     string
	meshes      []*MeshResource
	resource    *CachedResource
	cache       *ModelCache
	sharedPool  *SharedPool
	poolHandle  *PoolHandle
	usingPool   bool
	lastApplied *math.Mat4
	loaded      bool
}

func NewModel(locator string) *Model {
	return &Model{
		ID:      uuid.New(),
		locator: locator,
	}
}

func (m *Model) Locator() string {
	return m.locator
}

/** @brief Reports whether the model can be drawn. Callers draw a fallback otherwise. */
func (m *Model) IsLoaded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loaded
}

func (m *Model) UsingPool() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.usingPool
}

/** @brief The meshes of the model in baking order. */
func (m *Model) Meshes() []*MeshResource {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*MeshResource(nil), m.meshes...)
}

/**
 * @brief Moves every mesh of the model by transform. Pooled models queue the
 * work for the end of the frame; others transform on the calling goroutine.
 * Nothing happens when transform equals the last one applied.
 */
func (m *Model) UpdateTransform(transform math.Mat4) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.loaded {
		return
	}
	if m.lastApplied != nil && m.lastApplied.Equal(transform) {
		return
	}
	m.lastApplied = &transform

	if m.usingPool {
		for _, mesh := range m.meshes {
			mesh.QueueTransform(transform)
		}
		m.sharedPool.ScheduleFlush()
		return
	}
	for _, mesh := range m.meshes {
		mesh.UpdateTransformSync(transform)
	}
}

/** @brief Submits every mesh, switching texture and fill mode only when they change. */
func (m *Model) Draw(backend renderer.Backend) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.loaded {
		return
	}

	var (
		current  *metadata.Texture
		mode     metadata.FillMode
		anyDrawn bool
	)
	for _, mesh := range m.meshes {
		wantMode := metadata.FillModeColor
		if mesh.Texture != nil {
			wantMode = metadata.FillModeTexture
		}
		if !anyDrawn || wantMode != mode {
			backend.SetFillMode(wantMode)
			mode = wantMode
		}
		if mesh.Texture != nil && (!anyDrawn || mesh.Texture != current) {
			backend.BindTexture(mesh.Texture)
			current = mesh.Texture
		}
		backend.DrawMesh(mesh.Data)
		anyDrawn = true
	}
}

/**
 * @brief Frees every mesh, the pool handle and the cache reference. Textures are
 * deleted through backend when the last model using them is released.
 * Safe to call more than once.
 */
func (m *Model) Release(backend renderer.Backend) {
	m.mu.Lock()
	if !m.loaded {
		m.mu.Unlock()
		return
	}
	m.loaded = false
	meshes := m.meshes
	m.meshes = nil
	handle := m.poolHandle
	m.poolHandle = nil
	m.usingPool = false
	m.resource = nil
	m.lastApplied = nil
	m.mu.Unlock()

	for _, mesh := range meshes {
		mesh.Release()
	}
	if handle != nil {
		handle.Release()
	}
	m.cache.Release(m.locator, backend.DeleteTexture)
	core.LogDebug("model %s released (%d meshes)", m.ID, len(meshes))
}

func (m *Model) Stats() ModelStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := ModelStats{MeshCount: len(m.meshes)}
	if m.resource != nil {
		stats.TextureCount = len(m.resource.Textures)
	}
	for _, mesh := range m.meshes {
		stats.TotalVertices += int(mesh.VertexCount)
		stats.TotalIndices += int(mesh.Data.IndexCount)
	}
	return stats
}
