// Package headless implements a renderer backend that keeps every buffer and
// texture in memory. It is used by the runner when no window is available and
// by tests that need to observe uploads and draw calls.
package headless

import (
	"fmt"
	"image"
	"sync"

	"github.com/spaghettifunk/scenebake/engine/core"
	"github.com/spaghettifunk/scenebake/engine/renderer/metadata"
)

type Stats struct {
	DrawCalls       int
	TextureBinds    int
	FillModeChanges int
	// UploadedFloats counts vertex floats re-uploaded because they were marked changed.
	UploadedFloats  int
	IndexUploads    int
	LiveMeshes      int
	LiveTextures    int
	TexturesCreated int
	TexturesDeleted int
}

type Backend struct {
	mu           sync.Mutex
	nextID       uint32
	meshes       map[uint32]*metadata.MeshData
	textures     map[uint32]*metadata.Texture
	boundTexture *metadata.Texture
	fillMode     metadata.FillMode
	stats        Stats
}

func New() *Backend {
	return &Backend{
		meshes:   make(map[uint32]*metadata.MeshData),
		textures: make(map[uint32]*metadata.Texture),
		fillMode: metadata.FillModeColor,
	}
}

func (b *Backend) CreateMeshData(vertexCount, indexCount uint32) *metadata.MeshData {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	md := metadata.NewMeshData(b.nextID, vertexCount, indexCount, b.releaseMeshData)
	b.meshes[md.ID] = md
	return md
}

func (b *Backend) releaseMeshData(md *metadata.MeshData) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.meshes, md.ID)
}

func (b *Backend) CreateStaticTexture(name string, img image.Image) (*metadata.Texture, error) {
	if img == nil {
		err := fmt.Errorf("texture '%s' has no image data: %w", name, core.ErrUnsupportedImage)
		core.LogError(err.Error())
		return nil, err
	}
	bounds := img.Bounds()

	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	t := &metadata.Texture{
		ID:           b.nextID,
		Width:        uint32(bounds.Dx()),
		Height:       uint32(bounds.Dy()),
		ChannelCount: 4,
		Generation:   1,
		Name:         name,
		InternalData: img,
	}
	b.textures[t.ID] = t
	b.stats.TexturesCreated++
	return t, nil
}

func (b *Backend) DeleteTexture(texture *metadata.Texture) {
	if texture == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.textures[texture.ID]; !ok {
		core.LogWarn("headless backend: texture '%s' (id %d) deleted twice or never created", texture.Name, texture.ID)
		return
	}
	delete(b.textures, texture.ID)
	texture.InternalData = nil
	b.stats.TexturesDeleted++
}

func (b *Backend) BindTexture(texture *metadata.Texture) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.boundTexture = texture
	b.stats.TextureBinds++
}

func (b *Backend) SetFillMode(mode metadata.FillMode) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fillMode = mode
	b.stats.FillModeChanges++
}

// DrawMesh uploads every changed range of data and records a draw call.
func (b *Backend) DrawMesh(data *metadata.MeshData) {
	if data == nil || data.IsReleased() {
		core.LogWarn("headless backend: draw of a released mesh buffer ignored")
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, field := range []metadata.DataField{metadata.DataFieldPositions, metadata.DataFieldTexCoords, metadata.DataFieldColors} {
		if r, ok := data.DirtyRange(field); ok {
			b.stats.UploadedFloats += int(r.Count)
		}
	}
	if data.IndicesDirty() {
		b.stats.IndexUploads++
	}
	data.ClearDirty()
	b.stats.DrawCalls++
}

// BoundTexture returns the texture bound by the last BindTexture call.
func (b *Backend) BoundTexture() *metadata.Texture {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.boundTexture
}

func (b *Backend) FillMode() metadata.FillMode {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fillMode
}

func (b *Backend) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.stats
	s.LiveMeshes = len(b.meshes)
	s.LiveTextures = len(b.textures)
	return s
}

// ResetFrameStats zeroes the per-frame counters (draws, binds, uploads).
func (b *Backend) ResetFrameStats() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stats.DrawCalls = 0
	b.stats.TextureBinds = 0
	b.stats.FillModeChanges = 0
	b.stats.UploadedFloats = 0
	b.stats.IndexUploads = 0
}
